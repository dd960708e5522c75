package client

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gorecoil/protocol"
)

// paramFrame describes how a command travels in the client's dialect:
// the commands sharing the frame and the position of the requested one.
type paramFrame struct {
	cmds  [2]protocol.Command
	n     uint8
	index int
}

func (c *Client) frameFor(cmd protocol.Command) (paramFrame, error) {
	if c.dialect.Variant() != protocol.VariantLegacy {
		return paramFrame{cmds: [2]protocol.Command{cmd}, n: 1}, nil
	}
	cmds, n, index, ok := protocol.LegacyPair(cmd)
	if !ok {
		return paramFrame{}, errors.Wrapf(protocol.ErrUnsupported, "%v on a legacy board", cmd)
	}
	return paramFrame{cmds: cmds, n: n, index: index}, nil
}

// replies to reads and writes carry the same commands; the legacy dialect
// reports both as data frames.
func (c *Client) paramReply(pf paramFrame) func(*protocol.Message) bool {
	return func(m *protocol.Message) bool {
		return m.IsParam() && m.N == pf.n && m.Commands[0] == pf.cmds[0]
	}
}

func (c *Client) readFrame(ctx context.Context, pf paramFrame) ([2]uint32, error) {
	req := protocol.Message{Type: protocol.IDParamRead, Device: c.device, N: pf.n, Commands: pf.cmds}
	m, err := c.request(ctx, req, c.paramReply(pf))
	if err != nil {
		return [2]uint32{}, err
	}
	return m.Words, nil
}

// Read returns the raw value word of cmd.
func (c *Client) Read(ctx context.Context, cmd protocol.Command) (uint32, error) {
	pf, err := c.frameFor(cmd)
	if err != nil {
		return 0, err
	}
	words, err := c.readFrame(ctx, pf)
	if err != nil {
		return 0, errors.Wrapf(err, "read %v", cmd)
	}
	return words[pf.index], nil
}

// Write sets cmd to w and returns the value the device now holds. A value
// the device refused returns ErrRejected with the current value.
func (c *Client) Write(ctx context.Context, cmd protocol.Command, w uint32) (uint32, error) {
	pf, err := c.frameFor(cmd)
	if err != nil {
		return 0, err
	}

	var words [2]uint32
	if pf.n == 2 {
		// pairs are written whole; keep the other half as it is
		if words, err = c.readFrame(ctx, pf); err != nil {
			return 0, errors.Wrapf(err, "write %v", cmd)
		}
	}
	words[pf.index] = w

	req := protocol.Message{Type: protocol.IDParamWrite, Device: c.device, N: pf.n, Commands: pf.cmds, Words: words}
	m, err := c.request(ctx, req, c.paramReply(pf))
	if err != nil {
		return 0, errors.Wrapf(err, "write %v", cmd)
	}
	got := m.Words[pf.index]
	if got != w {
		return got, errors.Wrapf(ErrRejected, "write %v = %s, device holds %s", cmd,
			protocol.FormatWord(cmd.Encoding(), w), protocol.FormatWord(cmd.Encoding(), got))
	}
	return got, nil
}

// ReadFloat reads a float32 parameter.
func (c *Client) ReadFloat(ctx context.Context, cmd protocol.Command) (float32, error) {
	w, err := c.Read(ctx, cmd)
	return protocol.WordFloat32(w), err
}

// WriteFloat writes a float32 parameter.
func (c *Client) WriteFloat(ctx context.Context, cmd protocol.Command, v float32) (float32, error) {
	w, err := c.Write(ctx, cmd, protocol.Float32Word(v))
	return protocol.WordFloat32(w), err
}

// Param is one command and its value word.
type Param struct {
	Command protocol.Command
	Word    uint32
}

// WriteParams writes every parameter in order. All writes are attempted;
// the failures are returned together.
func (c *Client) WriteParams(ctx context.Context, params []Param) error {
	var errs error
	for _, p := range params {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if _, err := c.Write(ctx, p.Command, p.Word); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Dump reads every known parameter. Commands the device does not answer
// are left out and reported in the error.
func (c *Client) Dump(ctx context.Context) ([]Param, error) {
	var out []Param
	var errs error
	for _, info := range protocol.Commands() {
		if _, err := c.frameFor(info.Code); err != nil {
			continue
		}
		w, err := c.Read(ctx, info.Code)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, Param{Command: info.Code, Word: w})
	}
	return out, errs
}
