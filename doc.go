// Package modelsync keeps an in-memory graph of project model entities in
// two-way sync with the XML configuration files of a project.
//
// An Engine owns three partitions of the graph: the main partition, the
// unloaded partition holding modules the user excluded, and the orphan
// partition holding entities whose module is missing. Load parses the
// configuration directory; Reload applies a set of changed files and
// reparses only what they affect, keeping the identity of everything else;
// Update and Rename edit the graph in a write transaction; SaveChanged
// writes back only the files owning changed entities.
//
//	e, err := modelsync.New("/path/to/project", modelsync.WithCache(".modelsync/cache.db"))
//	if err != nil { ... }
//	defer e.Close()
//	if err := e.Load(ctx); err != nil { ... }
//	_, err = e.Rename(ctx, graph.LibraryID(graph.ProjectTable, "gson"), renameTo("gson-2.10"))
//	_, err = e.SaveChanged(ctx)
//
// A global engine created with NewGlobal loads the shared SDK and
// application library tables. Sharing a scheduler between engines makes
// LoadDeferred wait for project loads that are in flight.
package modelsync
