package frameq

// Frame is one tick's worth of recorded commands plus the arena holding
// their bulk payloads. Commands preserve submission order; the device
// replays them first-in first-out.
//
// Frame is not safe for concurrent use on its own; DoubleBuf serializes
// producer access.
type Frame struct {
	cmds    []Command
	arena   *Arena
	scissor Scissor
}

// NewFrame returns a frame whose arena starts with the given capacity.
func NewFrame(arenaCapacity int) *Frame {
	return &Frame{arena: NewArena(arenaCapacity)}
}

// Push appends a command.
func (f *Frame) Push(cmd Command) {
	f.cmds = append(f.cmds, cmd)
}

// Extend copies payload bytes into the frame's arena.
func (f *Frame) Extend(data []byte) Span {
	return f.arena.Extend(data)
}

// Commands returns the recorded commands in submission order.
func (f *Frame) Commands() []Command { return f.cmds }

// Bytes resolves a span recorded against this frame.
func (f *Frame) Bytes(s Span) []byte { return f.arena.Bytes(s) }

// Len returns the number of recorded commands.
func (f *Frame) Len() int { return len(f.cmds) }

// Scissor returns the scissor state active for subsequent draws.
func (f *Frame) Scissor() Scissor { return f.scissor }

// SetScissor replaces the active scissor state.
func (f *Frame) SetScissor(s Scissor) { f.scissor = s }

// Clear drops all commands and payloads, retaining storage.
func (f *Frame) Clear() {
	for i := range f.cmds {
		f.cmds[i] = nil
	}
	f.cmds = f.cmds[:0]
	f.arena.Reset()
	f.scissor = Scissor{}
}
