// Package gcode implements the token-stream core of the post-processor:
// an intrusive doubly-linked token sequence, a line-oriented parser, the
// validator/fixer pass and the forward state analyser, plus the
// serializer that turns the sequence back into text.
package gcode

// Token is the common interface satisfied by every sequence element
// (GCode, ToolChange, Params, Comment). It carries the intrusive list
// links plus the per-token state/runtime the analyser attaches.
//
// Implementations embed node by value and get every method below
// promoted from it; only String() is type-specific.
type Token interface {
	Prev() Token
	Next() Token
	Seq() int
	PreState() *MachineState
	PostState() *MachineState
	Runtime() float64

	setPrev(Token)
	setNext(Token)
	owner() *List
	setOwner(*List)
	setSeq(int)
	setPreState(*MachineState)
	setPostState(*MachineState)
	setRuntime(float64)

	String() string
}

// node is the intrusive link header embedded by every concrete token
// type. Plain prev/next pointers suffice here, since the pipeline keeps
// a single stream rather than a pool of interchangeable lists.
type node struct {
	list *List
	prev Token
	next Token

	seq       int
	preState  *MachineState
	postState *MachineState
	runtime   float64
}

func (n *node) Prev() Token                  { return n.prev }
func (n *node) Next() Token                  { return n.next }
func (n *node) Seq() int                     { return n.seq }
func (n *node) PreState() *MachineState      { return n.preState }
func (n *node) PostState() *MachineState     { return n.postState }
func (n *node) Runtime() float64             { return n.runtime }
func (n *node) setPrev(t Token)              { n.prev = t }
func (n *node) setNext(t Token)              { n.next = t }
func (n *node) owner() *List                 { return n.list }
func (n *node) setOwner(l *List)             { n.list = l }
func (n *node) setSeq(s int)                 { n.seq = s }
func (n *node) setPreState(s *MachineState)  { n.preState = s }
func (n *node) setPostState(s *MachineState) { n.postState = s }
func (n *node) setRuntime(r float64)         { n.runtime = r }

// List is the intrusive ordered sequence that owns every token. Splice
// and removal given a neighbour handle are O(1); iteration is done by
// following Next()/Prev() directly from a token, so it stays stable
// across insertions made elsewhere in the sequence while it is underway.
type List struct {
	head Token
	tail Token
	len  int
}

// NewList returns an empty sequence.
func NewList() *List {
	return &List{}
}

// Head returns the first token, or nil if the sequence is empty.
func (l *List) Head() Token { return l.head }

// Tail returns the last token, or nil if the sequence is empty.
func (l *List) Tail() Token { return l.tail }

// Len returns the number of tokens currently in the sequence.
func (l *List) Len() int { return l.len }

// Append adds tok at the end of the sequence. If tok already belongs
// to a sequence (this one or another), it is removed first.
func (l *List) Append(tok Token) {
	if tok.owner() != nil {
		tok.owner().Remove(tok)
	}
	if l.tail == nil {
		l.head, l.tail = tok, tok
		tok.setPrev(nil)
		tok.setNext(nil)
	} else {
		l.insertAfterRaw(l.tail, tok)
	}
	tok.setOwner(l)
	l.len++
}

// Prepend adds tok at the start of the sequence.
func (l *List) Prepend(tok Token) {
	if tok.owner() != nil {
		tok.owner().Remove(tok)
	}
	if l.head == nil {
		l.head, l.tail = tok, tok
		tok.setPrev(nil)
		tok.setNext(nil)
	} else {
		l.insertBeforeRaw(l.head, tok)
	}
	tok.setOwner(l)
	l.len++
}

// InsertAfter splices tok into the sequence immediately after anchor.
// anchor must already belong to l.
func (l *List) InsertAfter(anchor, tok Token) {
	if anchor.owner() != l {
		panic("gcode: InsertAfter anchor does not belong to this sequence")
	}
	if tok.owner() != nil {
		tok.owner().Remove(tok)
	}
	l.insertAfterRaw(anchor, tok)
	tok.setOwner(l)
	l.len++
}

// InsertBefore splices tok into the sequence immediately before anchor.
// anchor must already belong to l.
func (l *List) InsertBefore(anchor, tok Token) {
	if anchor.owner() != l {
		panic("gcode: InsertBefore anchor does not belong to this sequence")
	}
	if tok.owner() != nil {
		tok.owner().Remove(tok)
	}
	l.insertBeforeRaw(anchor, tok)
	tok.setOwner(l)
	l.len++
}

func (l *List) insertAfterRaw(anchor, tok Token) {
	next := anchor.Next()
	tok.setPrev(anchor)
	tok.setNext(next)
	anchor.setNext(tok)
	if next != nil {
		next.setPrev(tok)
	} else {
		l.tail = tok
	}
}

func (l *List) insertBeforeRaw(anchor, tok Token) {
	prev := anchor.Prev()
	tok.setNext(anchor)
	tok.setPrev(prev)
	anchor.setPrev(tok)
	if prev != nil {
		prev.setNext(tok)
	} else {
		l.head = tok
	}
}

// Remove detaches tok from the sequence. tok must belong to l.
func (l *List) Remove(tok Token) {
	if tok.owner() != l {
		panic("gcode: Remove called on token not owned by this sequence")
	}
	prev, next := tok.Prev(), tok.Next()
	if prev != nil {
		prev.setNext(next)
	} else {
		l.head = next
	}
	if next != nil {
		next.setPrev(prev)
	} else {
		l.tail = prev
	}
	tok.setPrev(nil)
	tok.setNext(nil)
	tok.setOwner(nil)
	l.len--
}

// SpliceAfter moves every element of other into l, immediately after
// anchor. other is left empty. anchor must belong to l.
func (l *List) SpliceAfter(anchor Token, other *List) {
	if anchor.owner() != l {
		panic("gcode: SpliceAfter anchor does not belong to this sequence")
	}
	if other == nil || other.len == 0 {
		return
	}
	for tok := other.head; tok != nil; tok = tok.Next() {
		tok.setOwner(l)
	}
	next := anchor.Next()
	anchor.setNext(other.head)
	other.head.setPrev(anchor)
	other.tail.setNext(next)
	if next != nil {
		next.setPrev(other.tail)
	} else {
		l.tail = other.tail
	}
	l.len += other.len
	other.head, other.tail, other.len = nil, nil, 0
}

// Slice returns every token from head to tail, in order. Intended for
// tests and small debug dumps, not hot paths.
func (l *List) Slice() []Token {
	out := make([]Token, 0, l.len)
	for tok := l.head; tok != nil; tok = tok.Next() {
		out = append(out, tok)
	}
	return out
}
