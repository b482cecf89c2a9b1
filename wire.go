package crate

// flattener turns the in-memory box graph into the encodable tree. A
// node with identity is written in full at its first position in decode
// order and as a ref everywhere after that. Identical closure code is
// written once and referenced by CodeID.
type flattener struct {
	emitted  map[uint64]bool
	codes    map[string]uint64
	nextCode uint64
}

func flatten(root *Node) *Node {
	f := &flattener{
		emitted: make(map[uint64]bool),
		codes:   make(map[string]uint64),
	}
	return f.node(root)
}

func (f *flattener) node(n *Node) *Node {
	if n == nil {
		return nil
	}
	if n.ID != 0 {
		if f.emitted[n.ID] {
			return &Node{Kind: KindRef, Ref: n.ID}
		}
		f.emitted[n.ID] = true
	}

	out := *n
	if n.Items != nil {
		out.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			out.Items[i] = f.node(item)
		}
	}
	if n.Entries != nil {
		out.Entries = make([]Entry, len(n.Entries))
		for i, e := range n.Entries {
			out.Entries[i] = Entry{Key: f.node(e.Key), Value: f.node(e.Value)}
		}
	}
	out.Fields = f.fields(n.Fields)
	out.Elem = f.node(n.Elem)
	if n.Box != nil {
		out.Box = f.box(n.Box)
	}
	return &out
}

func (f *flattener) fields(in []Field) []Field {
	if in == nil {
		return nil
	}
	out := make([]Field, len(in))
	for i, fl := range in {
		out[i] = Field{Name: fl.Name, Value: f.node(fl.Value)}
	}
	return out
}

// box copies a box in decode order: code, fields, private buckets,
// receiver, then captured variables.
func (f *flattener) box(b *Box) *Box {
	out := *b
	if b.Code != nil {
		key := b.Code.key()
		if id, ok := f.codes[key]; ok {
			out.Code = nil
			out.CodeID = id
		} else {
			f.nextCode++
			f.codes[key] = f.nextCode
			code := *b.Code
			out.Code = &code
			out.CodeID = f.nextCode
		}
	}

	out.Fields = f.fields(b.Fields)
	if b.Private != nil {
		out.Private = make([]Bucket, len(b.Private))
		for i, bk := range b.Private {
			out.Private[i] = Bucket{Type: bk.Type, Fields: f.fields(bk.Fields)}
		}
	}
	out.Receiver = f.node(b.Receiver)
	out.Vars = f.fields(b.Vars)
	return &out
}
