package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/U201311/clip-image-search-v2/internal/db"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/filter"
)

// Aggregate opens an FT.AGGREGATE WITHCURSOR scan. The first batch is fetched eagerly,
// so index and query errors surface here rather than on the first Next.
func (s *Store) Aggregate(ctx context.Context, q *db.AggregateQuery) (db.Cursor, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}

	queryStr := buildFilter(q.Filters)
	if queryStr == "" {
		queryStr = "*"
	}

	args := []string{q.IndexName, queryStr}
	if len(q.Load) > 0 {
		args = append(args, "LOAD", strconv.Itoa(len(q.Load)))
		for _, f := range q.Load {
			args = append(args, "@"+f)
		}
	}
	args = append(args, "WITHCURSOR", "COUNT", strconv.Itoa(q.BatchSize))
	if q.MaxIdle > 0 {
		args = append(args, "MAXIDLE", strconv.FormatInt(q.MaxIdle.Milliseconds(), 10))
	}
	args = append(args, "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	rows, cid, err := parseCursorReply(s.do(ctx, cmd))
	if err != nil {
		return nil, &db.Error{Op: db.OpAggregate, Err: err}
	}

	return &aggCursor{
		store:   s,
		index:   q.IndexName,
		count:   q.BatchSize,
		pending: rows,
		cid:     cid,
	}, nil
}

// aggCursor walks an FT.AGGREGATE cursor. Not safe for concurrent use.
type aggCursor struct {
	store   *Store
	index   string
	count   int
	pending []db.Row
	cid     int64
	closed  bool
}

func (c *aggCursor) Next(ctx context.Context) ([]db.Row, bool, error) {
	if c.pending != nil {
		rows := c.pending
		c.pending = nil
		return rows, false, nil
	}
	if c.cid == 0 || c.closed {
		return nil, true, nil
	}

	cmd := c.store.b().Arbitrary("FT.CURSOR").
		Args("READ", c.index, strconv.FormatInt(c.cid, 10), "COUNT", strconv.Itoa(c.count)).
		Build()
	rows, cid, err := parseCursorReply(c.store.do(ctx, cmd))
	if err != nil {
		return nil, false, &db.Error{Op: db.OpCursorRead, Err: err}
	}
	c.cid = cid
	if len(rows) == 0 && cid == 0 {
		return nil, true, nil
	}
	return rows, false, nil
}

func (c *aggCursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pending = nil
	if c.cid == 0 {
		return nil
	}
	cmd := c.store.b().Arbitrary("FT.CURSOR").
		Args("DEL", c.index, strconv.FormatInt(c.cid, 10)).
		Build()
	c.cid = 0
	if err := c.store.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "cursor does not exist") {
			return nil
		}
		return &db.Error{Op: db.OpCursorDel, Err: err}
	}
	return nil
}

// parseCursorReply decodes the RESP2 shape [[total, row1, row2, ...], cursorID]
// where each row is a flat [field, value, ...] array.
func parseCursorReply(res rueidis.RedisResult) ([]db.Row, int64, error) {
	raw, err := res.ToArray()
	if err != nil {
		return nil, 0, err
	}
	if len(raw) != 2 {
		return nil, 0, fmt.Errorf("unexpected cursor reply length %d", len(raw))
	}

	cid, err := raw[1].AsInt64()
	if err != nil {
		return nil, 0, fmt.Errorf("parse cursor id: %w", err)
	}

	results, err := raw[0].ToArray()
	if err != nil {
		return nil, 0, fmt.Errorf("parse results: %w", err)
	}

	rows := make([]db.Row, 0, max(len(results)-1, 0))
	// results[0] is the total count, which is unreliable under a cursor.
	for i := 1; i < len(results); i++ {
		fields, err := results[i].ToArray()
		if err != nil {
			continue
		}
		rows = append(rows, parseFieldPairs(fields))
	}
	return rows, cid, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) db.Row {
	m := make(db.Row, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter translates a filter.Expression into an FT query string ("" when empty).
func buildFilter(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(expr.Conditions()))
	for _, cond := range expr.Conditions() {
		if p := buildCondition(cond); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func buildCondition(cond filter.Condition) string {
	switch cond.Kind() {
	case filter.KindMatch, filter.KindAnyOf:
		return buildTagFilter(cond.Key(), cond.Values())
	case filter.KindRange:
		return buildNumericFilter(cond.Key(), cond.Range())
	default:
		return ""
	}
}

func buildTagFilter(key string, values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return fmt.Sprintf("@%s:{%s}", key, strings.Join(escaped, " | "))
}

func buildNumericFilter(key string, r filter.Range) string {
	minBound := "-inf"
	maxBound := "+inf"

	if r.GT() != nil {
		minBound = fmt.Sprintf("(%g", *r.GT())
	} else if r.GTE() != nil {
		minBound = fmt.Sprintf("%g", *r.GTE())
	}

	if r.LT() != nil {
		maxBound = fmt.Sprintf("(%g", *r.LT())
	} else if r.LTE() != nil {
		maxBound = fmt.Sprintf("%g", *r.LTE())
	}

	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)
