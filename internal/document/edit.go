package document

import "fmt"

func (d *Document) Node(name string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].Name == name {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

func (d *Document) AddNode(n Node) error {
	if _, ok := d.Node(n.Name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, n.Name)
	}
	d.Nodes = append(d.Nodes, n)
	return nil
}

// RemoveNode deletes a node along with its edges and any recorders bound to it.
func (d *Document) RemoveNode(name string) error {
	idx := -1
	for i := range d.Nodes {
		if d.Nodes[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}
	d.Nodes = append(d.Nodes[:idx], d.Nodes[idx+1:]...)

	edges := d.Edges[:0]
	for _, e := range d.Edges {
		if e.From != name && e.To != name {
			edges = append(edges, e)
		}
	}
	d.Edges = edges

	for k, r := range d.Recorders {
		if r.Node == name {
			delete(d.Recorders, k)
		}
	}
	return nil
}

// RenameNode renames a node and rewrites every edge and recorder that refers to it.
func (d *Document) RenameNode(oldName, newName string) error {
	n, ok := d.Node(oldName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, oldName)
	}
	if _, taken := d.Node(newName); taken {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, newName)
	}
	n.Name = newName

	for i := range d.Edges {
		if d.Edges[i].From == oldName {
			d.Edges[i].From = newName
		}
		if d.Edges[i].To == oldName {
			d.Edges[i].To = newName
		}
	}
	for k, r := range d.Recorders {
		if r.Node == oldName {
			r.Node = newName
			d.Recorders[k] = r
		}
	}
	return nil
}

func (d *Document) AddEdge(from, to string) error {
	if _, ok := d.Node(from); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, from)
	}
	if _, ok := d.Node(to); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, to)
	}
	e := Edge{From: from, To: to}
	for _, existing := range d.Edges {
		if existing == e {
			return fmt.Errorf("%w: %s", ErrDuplicateEdge, e)
		}
	}
	d.Edges = append(d.Edges, e)
	return nil
}

func (d *Document) RemoveEdge(from, to string) error {
	e := Edge{From: from, To: to}
	for i, existing := range d.Edges {
		if existing == e {
			d.Edges = append(d.Edges[:i], d.Edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownEdge, e)
}
