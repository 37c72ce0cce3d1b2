// Package clipsearch embeds the clip image search core in a Go program:
// a feature store on Redis, an ingestion pipeline and a chunked cosine ranker
// over CLIP-style image embeddings.
//
//	client, _ := clipsearch.New(ctx,
//	    clipsearch.WithRedis("localhost:6379"),
//	    clipsearch.WithEmbedding("http://localhost:8000/v1", "", "ViT-B/32"),
//	    clipsearch.WithContentRoot("./data"),
//	)
//	defer client.Close()
//
//	outcomes, _ := client.IngestDir(ctx, "./photos", clipsearch.IntoScope("album-1"), clipsearch.CopyIntoStore())
//	_ = client.RegisterDataset(ctx, "holidays", "Holidays", "album-1")
//
//	res, _ := client.SearchText(ctx, "holidays", "a dog on the beach",
//	    clipsearch.Limit(20),
//	    clipsearch.MinSize(640, 480),
//	)
//	for _, hit := range res.Hits {
//	    fmt.Println(hit.Location, hit.Score)
//	}
package clipsearch
