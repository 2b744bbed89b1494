// refgraph program
//
// This reads the commit-map and ref-map audit artifacts a rewrite run
// wrote under its results directory and renders the rewritten
// repository's ref/commit topology as a graphviz DOT file, in the
// spirit of the teacher's cmd/gitgraph. Unlike gitgraph, which parses a
// raw fast-export stream, refgraph walks the already-rewritten
// repository with `git log` and annotates each node with its
// pre-rewrite oid (from commit-map) where one is on record.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/emicklei/dot"
	"github.com/goccy/go-graphviz"
	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	var (
		repoDir = kingpin.Arg(
			"repo",
			"Rewritten repository to graph.",
		).Default(".").String()
		commitMap = kingpin.Flag(
			"commit-map",
			"commit-map file from the rewrite run.",
		).Default("commit-map").String()
		refMap = kingpin.Flag(
			"ref-map",
			"ref-map file from the rewrite run.",
		).Default("ref-map").String()
		outputGraph = kingpin.Flag(
			"output",
			"Graphviz DOT file to write.",
		).Short('o').Default("refgraph.dot").String()
		outputPNG = kingpin.Flag(
			"png",
			"Also rasterize the graph to this PNG path.",
		).String()
		maxCommits = kingpin.Flag(
			"max-commits",
			"Limit how many commits back from each ref tip to walk (0 means all).",
		).Default("0").Int()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("refgraph")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Renders a rewritten repository's ref/commit DAG, annotated from commit-map/ref-map, to graphviz DOT (and optionally PNG).\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug {
		logger.Level = logrus.DebugLevel
	}

	oldByNew, err := loadCommitMap(*commitMap)
	if err != nil {
		logger.Warnf("commit-map: %v (node labels will show new oids only)", err)
	}
	refs, err := loadRefMap(*refMap)
	if err != nil {
		logger.Fatalf("ref-map: %v", err)
	}

	g, err := buildGraph(*repoDir, refs, oldByNew, *maxCommits)
	if err != nil {
		logger.Fatalf("walking %s: %v", *repoDir, err)
	}

	f, err := os.OpenFile(*outputGraph, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		logger.Fatalf("writing %s: %v", *outputGraph, err)
	}
	if _, err := f.WriteString(g.String()); err != nil {
		f.Close()
		logger.Fatalf("writing %s: %v", *outputGraph, err)
	}
	f.Close()
	logger.Infof("wrote %s", *outputGraph)

	if *outputPNG != "" {
		if err := rasterize(g.String(), *outputPNG); err != nil {
			logger.Fatalf("rasterizing %s: %v", *outputPNG, err)
		}
		logger.Infof("wrote %s", *outputPNG)
	}
}

type refEntry struct {
	oldRef, newRef string
	oldOID, newOID string
}

// loadCommitMap parses "<old-oid> <new-oid>" lines into a new-oid ->
// old-oid lookup (report.CommitMapWriter's format).
func loadCommitMap(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		out[fields[1]] = fields[0]
	}
	return out, scanner.Err()
}

// loadRefMap parses "<old-oid> <new-oid> <old-ref> <new-ref>" lines
// (report.RefMapWriter's format).
func loadRefMap(path string) ([]refEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []refEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 4 {
			continue
		}
		out = append(out, refEntry{oldOID: fields[0], newOID: fields[1], oldRef: fields[2], newRef: fields[3]})
	}
	return out, scanner.Err()
}

// buildGraph walks each surviving ref's ancestry with `git log` and
// assembles a directed graph of commit nodes (labeled with the short new
// oid, and the short old oid when commit-map has one) and parent edges,
// plus a dashed edge from each ref's label node to its tip commit.
func buildGraph(repoDir string, refs []refEntry, oldByNew map[string]string, maxCommits int) (*dot.Graph, error) {
	g := dot.NewGraph(dot.Directed)
	nodes := make(map[string]dot.Node)

	nodeFor := func(oid string) dot.Node {
		if n, ok := nodes[oid]; ok {
			return n
		}
		label := oid[:minInt(8, len(oid))]
		if old, ok := oldByNew[oid]; ok {
			label = fmt.Sprintf("%s\\n(was %s)", label, old[:minInt(8, len(old))])
		}
		n := g.Node(oid).Label(label)
		nodes[oid] = n
		return n
	}

	for _, e := range refs {
		if e.newOID == "" || strings.Count(e.newOID, "0") == len(e.newOID) {
			continue // deleted ref, nothing to walk
		}
		args := []string{"log", "--pretty=%H %P"}
		if maxCommits > 0 {
			args = append(args, fmt.Sprintf("--max-count=%d", maxCommits))
		}
		args = append(args, e.newOID)
		cmd := exec.Command("git", args...)
		cmd.Dir = repoDir
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("git log %s: %w", e.newRef, err)
		}
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			child := nodeFor(fields[0])
			for _, parent := range fields[1:] {
				g.Edge(child, nodeFor(parent))
			}
		}
		refLabel := g.Node("ref:" + e.newRef).Label(e.newRef).Box()
		g.Edge(refLabel, nodeFor(e.newOID)).Attr("style", "dashed")
	}
	return g, nil
}

// rasterize renders dotSource to a PNG using goccy/go-graphviz, the
// rendering backend the teacher's go.mod names but cmd/gitgraph never
// actually calls (it only ever wrote the .dot text itself).
func rasterize(dotSource, pngPath string) error {
	gv := graphviz.New()
	graph, err := graphviz.ParseBytes([]byte(dotSource))
	if err != nil {
		return fmt.Errorf("parsing dot output: %w", err)
	}
	defer graph.Close()
	return gv.RenderFilename(graph, graphviz.PNG, pngPath)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
