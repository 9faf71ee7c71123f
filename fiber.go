package flowz

// fiber is a cooperative execution context built on a goroutine with an
// explicit resume/yield handshake. The goroutine does not run until the
// first resume; every resume blocks the caller until the fiber either
// yields or returns, so the body runs on at most one worker at a time and
// the worker is, in effect, lent to the fiber for the duration.
//
// The handshake channels are unbuffered on purpose: a resume is a control
// transfer, not a wakeup hint. Admission control (which worker may resume,
// and when) lives in the collective, not here.
type fiber struct {
	resumed chan struct{}
	yielded chan struct{}
}

// newFiber creates a fiber around body. The body does not start executing
// until the first resume.
func newFiber(body func()) *fiber {
	f := &fiber{
		resumed: make(chan struct{}),
		yielded: make(chan struct{}),
	}
	go func() {
		<-f.resumed
		body()
		// The final control transfer back to whichever worker issued the
		// last resume. The collective marks the box halted inside body, so
		// no further resume can be issued after this send is consumed.
		f.yielded <- struct{}{}
	}()
	return f
}

// resume transfers control to the fiber and blocks until it yields or its
// body returns. Callers must hold the owning box's running gate; resuming a
// fiber from two goroutines at once is a protocol violation.
func (f *fiber) resume() {
	f.resumed <- struct{}{}
	<-f.yielded
}

// yield returns control to the resuming worker and blocks until the next
// resume. Must only be called from the fiber's own body.
func (f *fiber) yield() {
	f.yielded <- struct{}{}
	<-f.resumed
}
