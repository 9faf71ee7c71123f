package flowz

// Name is a type alias for box and collective names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    TokenizerName Name = "tokenizer"
//	    ParserName    Name = "parser"
//	)
//
//	tok := flowz.CreateBox(c, TokenizerName, &tokenizer{})
type Name = string

// Computer is the contract a box type fulfills. The Compute method is the
// box's fiber body: it runs cooperatively on a collective worker, may block
// on In.Dequeue, and its return (by any means) marks the box halted.
//
// The unexported anchor method is provided by embedding Box, so a box type
// is declared by embedding and implementing Compute:
//
//	type doubler struct {
//	    flowz.Box
//	    in  *flowz.In[int]
//	    out *flowz.Out[int]
//	}
//
//	func (d *doubler) Init() {
//	    d.in = flowz.NewIn[int](d)
//	    d.out = flowz.NewOut[int](d)
//	}
//
//	func (d *doubler) Compute() {
//	    for v, ok := d.in.Dequeue(); ok; v, ok = d.in.Dequeue() {
//	        d.out.Enqueue(v * 2)
//	    }
//	}
type Computer interface {
	Compute()
	core() *Box
}

// Initializer is implemented by box types that construct their channel
// endpoints or perform other setup. Init runs under the collective's
// construction lock, before scheduling begins for the box.
type Initializer interface {
	Init()
}

// Terminator is implemented by box types that need cleanup after their
// Compute body returns. Terminate runs on the box's fiber, before the
// completion event fires.
type Terminator interface {
	Terminate()
}

// Owner is the handle a channel endpoint needs to register itself with its
// owning box. Any type embedding Box satisfies it; NewIn and NewOut accept
// the box value itself.
type Owner interface {
	core() *Box
}
