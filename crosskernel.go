package cellscope

// inferCrossKernel adds the edges that connect cells outside the
// last-definer pass: explicit %put/%get hand-offs and file hand-offs.
func inferCrossKernel(f *edgeFolder, records []*CellRecord) {
	linkExplicitHandoffs(f, records)
	linkFileHandoffs(f, records)
}

// linkExplicitHandoffs pairs every exporter with every later importer of a
// different kernel. An export is never consumed, so one exporter may feed
// any number of importers.
func linkExplicitHandoffs(f *edgeFolder, records []*CellRecord) {
	for i, exp := range records {
		if exp.Exports.Len() == 0 {
			continue
		}
		for _, imp := range records[i+1:] {
			if imp.Kernel == exp.Kernel {
				continue
			}
			shared := exp.Exports.Intersect(imp.Imports)
			if shared.Len() > 0 {
				f.add(exp.Index, imp.Index, CrossKernelHandoff, shared.Sorted()...)
			}
		}
	}
}

// linkFileHandoffs links each read to the most recent strictly earlier
// writer of the same path. A cell's writes are registered before its reads
// are checked, so a cell that rewrites a path it reads shadows every earlier
// writer and the resulting self edge is dropped by the folder.
func linkFileHandoffs(f *edgeFolder, records []*CellRecord) {
	lastWriter := make(map[string]int)
	for _, r := range records {
		for p := range r.Writes {
			lastWriter[p] = r.Index
		}
		for p := range r.Reads {
			if w, ok := lastWriter[p]; ok && w < r.Index {
				f.add(w, r.Index, FileHandoff, p)
			}
		}
	}
}
