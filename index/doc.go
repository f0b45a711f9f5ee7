// Package index holds the in-process, per-task chunk index and answers
// hybrid keyword/semantic searches against it.
//
// A Registry maps task IDs to insertion-ordered chunk lists. Tasks are created
// implicitly by Add and never see each other's chunks. The registry is not
// durable: Rebuild reloads it from a chunk store such as storage.ChunkRepository.
//
//	reg, err := index.NewRegistry(provider.Embedder())
//	err = reg.Add(ctx, "task-1", chunks...)
//	hits, err := reg.Search(ctx, "task-1", "quarterly revenue", 5)
package index
