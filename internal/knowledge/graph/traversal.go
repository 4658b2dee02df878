package graph

import "sort"

// Path is one simple path through the graph: the ordered node IDs plus the
// edges walked between them.
type Path struct {
	Nodes []string
	Edges []EdgeData
}

// Hops is the number of edges in the path.
func (p Path) Hops() int { return len(p.Edges) }

// HasPath reports whether target is reachable from source following any edge
// direction-forward. BFS with a visited set, so cyclic graphs terminate.
func (g *ConceptGraph) HasPath(source, target string) bool {
	if source == target {
		_, ok := g.nodes[source]
		return ok
	}
	visited := map[string]bool{source: true}
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.out[cur] {
			if e.Target == target {
				return true
			}
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return false
}

// FindAllPaths enumerates every simple path starting at start with at most
// maxLen edges, restricted to edges accepted by filter (nil accepts all).
// The visited set is tracked per path, never globally: a cyclic graph yields
// truncated paths rather than non-termination, and a node appears at most
// once within any single path.
func (g *ConceptGraph) FindAllPaths(start string, maxLen int, filter func(EdgeData) bool) []Path {
	if _, ok := g.nodes[start]; !ok || maxLen <= 0 {
		return nil
	}
	var paths []Path
	visited := map[string]bool{start: true}
	var walk func(cur string, nodes []string, edges []EdgeData)
	walk = func(cur string, nodes []string, edges []EdgeData) {
		for _, e := range g.out[cur] {
			if filter != nil && !filter(e) {
				continue
			}
			if visited[e.Target] {
				continue
			}
			nextNodes := append(append([]string{}, nodes...), e.Target)
			nextEdges := append(append([]EdgeData{}, edges...), e)
			paths = append(paths, Path{Nodes: nextNodes, Edges: nextEdges})
			if len(nextEdges) < maxLen {
				visited[e.Target] = true
				walk(e.Target, nextNodes, nextEdges)
				visited[e.Target] = false
			}
		}
	}
	walk(start, []string{start}, nil)
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Hops() < paths[j].Hops() })
	return paths
}

// Prerequisites returns the concepts that must precede id, following
// incoming prerequisite edges. With recursive=true the full ancestor closure
// is returned; a global visited set keeps cyclic catalogs terminating.
func (g *ConceptGraph) Prerequisites(id string, recursive bool) []string {
	if !recursive {
		return g.prereqParents(id)
	}
	visited := make(map[string]bool)
	var collect func(string)
	collect = func(cur string) {
		for _, p := range g.prereqParents(cur) {
			if !visited[p] {
				visited[p] = true
				collect(p)
			}
		}
	}
	collect(id)
	delete(visited, id)
	out := make([]string, 0, len(visited))
	for p := range visited {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (g *ConceptGraph) prereqParents(id string) []string {
	var out []string
	for _, e := range g.in[id] {
		if e.Type == RelPrerequisite {
			out = append(out, e.Source)
		}
	}
	sort.Strings(out)
	return out
}

// Postrequisites returns the concepts that id directly unlocks, following
// outgoing prerequisite edges.
func (g *ConceptGraph) Postrequisites(id string) []string {
	var out []string
	for _, e := range g.out[id] {
		if e.Type == RelPrerequisite {
			out = append(out, e.Target)
		}
	}
	sort.Strings(out)
	return out
}
