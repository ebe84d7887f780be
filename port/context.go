package port

// Region is a range of simulated memory.
type Region struct {
	Base uint32
	Size uint32
}

// End returns the first address past the region.
func (r Region) End() uint32 { return r.Base + r.Size }

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Base && addr-r.Base < r.Size
}

// stack is a full-descending stack inside a region.
type stack struct {
	Region
	sp  uint32
	low uint32
}

func newStack(r Region) stack {
	return stack{Region: r, sp: r.End(), low: r.End()}
}

func (s *stack) unused() uint32 { return s.low - s.Base }

type midctx struct {
	control uint32
	psp     uint32
}

const controlNPriv = 1 << 0

// Context is the saved execution state of one thread.
type Context struct {
	name       string
	stack      stack
	user       *stack
	privileged bool
	mid        []midctx
	wake       chan struct{}
}

func (c *Context) Name() string { return c.name }

// Privileged reports the privilege level of thread-mode code in c.
func (c *Context) Privileged() bool { return c.privileged }

// Stack returns the region of the context's own stack.
func (c *Context) Stack() Region { return c.stack.Region }

// StackUnused returns how many bytes of the context stack were never used.
func (c *Context) StackUnused() uint32 { return c.stack.unused() }

// SP returns the stack pointer of the stack currently selected by c.
func (c *Context) SP() uint32 { return c.active().sp }

func (c *Context) active() *stack {
	if !c.privileged && c.user != nil {
		return c.user
	}
	return &c.stack
}

func (c *Context) control() uint32 {
	if c.privileged {
		return 0
	}
	return controlNPriv
}
