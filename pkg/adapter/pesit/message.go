package server

import "github.com/nexfin/pesitd/pkg/pesit"

// handleMsg implements the single-frame message sub-protocol: ack with
// ACK_MSG, no state change (spec §4.8).
func (s *Session) handleMsg(f pesit.FPDU) error {
	return s.reply(pesit.ACK_MSG, nil)
}

// handleMsgDM starts a segmented-message reassembly buffer and enters
// MSG_RECEIVING (spec §4.8). No response is sent for a segment that is not
// the final one.
func (s *Session) handleMsgDM(f pesit.FPDU) error {
	msg, _ := f.Params.Get(pesit.PI_91)
	s.ctx.MsgBuffer = append([]byte(nil), msg.Value...)
	s.ctx.State = pesit.MSG_RECEIVING
	return nil
}

// handleMsgMM appends a middle segment to the reassembly buffer.
func (s *Session) handleMsgMM(f pesit.FPDU) error {
	msg, _ := f.Params.Get(pesit.PI_91)
	s.ctx.MsgBuffer = append(s.ctx.MsgBuffer, msg.Value...)
	return nil
}

// handleMsgFM appends the final segment, completes reassembly, acks with
// ACK_MSG, and returns to CN03_CONNECTED.
func (s *Session) handleMsgFM(f pesit.FPDU) error {
	msg, _ := f.Params.Get(pesit.PI_91)
	s.ctx.MsgBuffer = append(s.ctx.MsgBuffer, msg.Value...)
	s.ctx.MsgBuffer = nil
	if err := s.reply(pesit.ACK_MSG, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.CN03_CONNECTED
	return nil
}
