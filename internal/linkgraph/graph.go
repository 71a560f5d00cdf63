package linkgraph

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/fileutil"
)

/*
Responsibilities
- Record outbound edges as a set union, src -> dsts
- Maintain the inbound reverse index inside the same critical section
- Hand the Ranker a tagged, immutable snapshot rather than the live graph
- Persist edges by URL for portability across DocId renumbering
*/

type LinkGraph struct {
	mu       sync.RWMutex
	outbound map[docstore.DocId]map[docstore.DocId]struct{}
	inbound  map[docstore.DocId]map[docstore.DocId]struct{}

	docs         docstore.Store
	metadataSink metadata.MetadataSink
	outputDir    string
}

func NewLinkGraph(outputDir string, docs docstore.Store, metadataSink metadata.MetadataSink) (*LinkGraph, failure.ClassifiedError) {
	g := &LinkGraph{
		outbound:     make(map[docstore.DocId]map[docstore.DocId]struct{}),
		inbound:      make(map[docstore.DocId]map[docstore.DocId]struct{}),
		docs:         docs,
		metadataSink: metadataSink,
		outputDir:    outputDir,
	}

	if err := g.loadExisting(); err != nil {
		return nil, err
	}

	return g, nil
}

// AddEdges unions dsts into src's outbound set and updates every
// target's inbound set in the same critical section, so a reader taking
// a Snapshot never observes an outbound edge without its matching
// inbound entry.
func (g *LinkGraph) AddEdges(src docstore.DocId, dsts map[docstore.DocId]struct{}) {
	if len(dsts) == 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.outbound[src]
	if !ok {
		set = make(map[docstore.DocId]struct{})
		g.outbound[src] = set
	}
	for dst := range dsts {
		set[dst] = struct{}{}

		inSet, ok := g.inbound[dst]
		if !ok {
			inSet = make(map[docstore.DocId]struct{})
			g.inbound[dst] = inSet
		}
		inSet[src] = struct{}{}
	}

	g.persist()
}

func (g *LinkGraph) Outbound(id docstore.DocId) map[docstore.DocId]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copySet(g.outbound[id])
}

func (g *LinkGraph) Inbound(id docstore.DocId) map[docstore.DocId]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copySet(g.inbound[id])
}

func copySet(src map[docstore.DocId]struct{}) map[docstore.DocId]struct{} {
	if src == nil {
		return map[docstore.DocId]struct{}{}
	}
	out := make(map[docstore.DocId]struct{}, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

// Snapshot returns a uuid-tagged, independent copy of the graph for the
// Ranker to run PageRank over while the crawler keeps mutating the live
// graph underneath.
func (g *LinkGraph) Snapshot() GraphSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := GraphSnapshot{
		ID:       uuid.NewString(),
		Outbound: make(map[docstore.DocId]map[docstore.DocId]struct{}, len(g.outbound)),
		Inbound:  make(map[docstore.DocId]map[docstore.DocId]struct{}, len(g.inbound)),
	}
	for src, dsts := range g.outbound {
		out.Outbound[src] = copySet(dsts)
	}
	for dst, srcs := range g.inbound {
		out.Inbound[dst] = copySet(srcs)
	}
	return out
}

// persist rewrites graph.jsonl from the current in-memory edges. Called
// with g.mu already held for write; resolves DocIds back to URLs via
// DocStore so the file stays portable across a DocId renumbering.
func (g *LinkGraph) persist() {
	if g.outputDir == "" {
		return
	}
	if err := fileutil.EnsureDir(g.outputDir); err != nil {
		return
	}

	path := filepath.Join(g.outputDir, "graph.jsonl")
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		g.recordWriteFailure(err)
		return
	}

	writer := bufio.NewWriter(f)
	for src, dsts := range g.outbound {
		srcRec, ok := g.docs.GetByID(src)
		if !ok {
			continue
		}
		targets := make([]string, 0, len(dsts))
		for dst := range dsts {
			if dstRec, ok := g.docs.GetByID(dst); ok {
				targets = append(targets, dstRec.Url)
			}
		}
		body, marshalErr := json.Marshal(line{SourceUrl: srcRec.Url, TargetUrls: targets})
		if marshalErr != nil {
			continue
		}
		_, _ = writer.Write(body)
		_, _ = writer.WriteString("\n")
	}

	if err := writer.Flush(); err != nil {
		_ = f.Close()
		g.recordWriteFailure(err)
		return
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		g.recordWriteFailure(err)
		return
	}
	_ = f.Close()
	_ = os.Rename(tmpPath, path)

	g.metadataSink.RecordArtifact(metadata.ArtifactLinkGraphSegment, path, nil)
}

func (g *LinkGraph) recordWriteFailure(err error) {
	g.metadataSink.RecordError(
		time.Now(),
		"linkgraph",
		"LinkGraph.persist",
		metadata.CauseStorageFailure,
		err.Error(),
		nil,
	)
}

func (g *LinkGraph) loadExisting() failure.ClassifiedError {
	if g.outputDir == "" {
		return nil
	}
	path := filepath.Join(g.outputDir, "graph.jsonl")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ln line
		if err := json.Unmarshal(raw, &ln); err != nil {
			g.recordCorruptLine(path)
			continue
		}

		srcId, ok := g.docs.GetID(ln.SourceUrl)
		if !ok {
			continue
		}
		dsts := make(map[docstore.DocId]struct{})
		for _, targetUrl := range ln.TargetUrls {
			if dstId, ok := g.docs.GetID(targetUrl); ok {
				dsts[dstId] = struct{}{}
			}
		}
		if len(dsts) > 0 {
			g.outbound[srcId] = dsts
			for dst := range dsts {
				if g.inbound[dst] == nil {
					g.inbound[dst] = make(map[docstore.DocId]struct{})
				}
				g.inbound[dst][srcId] = struct{}{}
			}
		}
	}

	return nil
}

func (g *LinkGraph) recordCorruptLine(path string) {
	g.metadataSink.RecordError(
		time.Now(),
		"linkgraph",
		"LinkGraph.loadExisting",
		metadata.CauseInvariantViolation,
		"discarding corrupt link graph snapshot line",
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrPath, path)},
	)
}
