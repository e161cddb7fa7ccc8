package server

import (
	"strings"

	"github.com/nexfin/pesitd/internal/logger"
	"github.com/nexfin/pesitd/pkg/pesit"
	"github.com/nexfin/pesitd/pkg/registry"
)

const supportedProtocolVersion = 2

// handleConnect implements C3's server-side CONNECT validation (spec §4.3).
// Every rejection replies RCONNECT and keeps the session in CN01_REPOS;
// only a passing CONNECT advances to CN03_CONNECTED. Rejections are not
// session-ending errors, so this handler never returns a non-nil error for
// them.
func (s *Session) handleConnect(f pesit.FPDU) error {
	s.ctx.PeerConnID = f.IDSrc

	requester := getString(f.Params, pesit.PI_03, s.ctx.EBCDIC)
	serverName := getString(f.Params, pesit.PI_04, s.ctx.EBCDIC)
	password := getString(f.Params, pesit.PI_05, s.ctx.EBCDIC)
	version, _ := getUint8(f.Params, pesit.PI_06)
	access, _ := getUint8(f.Params, pesit.PI_22)

	if !strings.EqualFold(serverName, s.ctx.ServerID) {
		return s.rconnect(pesit.D0_303)
	}
	if int(version) > supportedProtocolVersion {
		return s.rconnect(pesit.D0_308)
	}

	reg := s.adapter.Registry
	partner, known := reg.Partner(requester)
	if reg.StrictPartnerCheck() {
		if !known || !partner.Enabled {
			return s.rconnect(pesit.D3_301)
		}
	}
	if known {
		if partner.Password != "" && partner.Password != password {
			return s.rconnect(pesit.D3_304)
		}
		requestedAccess := registry.AccessType(access)
		if !partner.Access.Allows(requestedAccess) {
			return s.rconnect(pesit.D3_304)
		}
	}

	s.ctx.PartnerID = requester
	s.ctx.Access = registry.AccessType(access)
	negotiatedVersion := version
	if negotiatedVersion == 0 || int(negotiatedVersion) > supportedProtocolVersion {
		negotiatedVersion = supportedProtocolVersion
	}
	s.ctx.ProtocolVersion = int(negotiatedVersion)
	s.ctx.MaxEntitySize = uint32(s.adapter.Config.MaxEntitySize.Uint64())

	_, peerWantsSync := f.Params.Get(pesit.PI_07)
	_, peerWantsResync := f.Params.Get(pesit.PI_23)
	s.ctx.SyncEnabled = s.adapter.Config.SyncPointsEnabled && peerWantsSync
	if s.ctx.SyncEnabled {
		s.ctx.SyncIntervalKB = uint32(s.adapter.Config.SyncIntervalKB.Uint64() / 1024)
	}
	s.ctx.ResyncEnabled = peerWantsResync

	resp := pesit.NewResponse(pesit.ACONNECT, s.ctx.PeerConnID, s.ctx.ServerConnID)
	resp.Params.AddUint8(pesit.PI_06, uint8(s.ctx.ProtocolVersion))
	if s.ctx.SyncEnabled {
		resp.Params.AddUint16(pesit.PI_07, uint16(s.ctx.SyncIntervalKB))
	}
	if s.ctx.ResyncEnabled {
		resp.Params.AddUint8(pesit.PI_23, 1)
	}
	resp.Params.AddUint32(pesit.PI_25, s.ctx.MaxEntitySize)
	if err := s.conn.WriteFPDU(resp); err != nil {
		return err
	}

	s.ctx.State = pesit.CN03_CONNECTED
	logger.Info("session connected", append(s.logCtx(), logger.KeyPartner, requester)...)
	return nil
}

func (s *Session) rconnect(d pesit.Diag) error {
	resp := pesit.NewResponse(pesit.RCONNECT, s.ctx.PeerConnID, s.ctx.ServerConnID)
	resp.Params.Add(pesit.PI_02, d.Bytes())
	logger.Info("CONNECT rejected", append(s.logCtx(), logger.KeyDiag, d.String())...)
	if s.adapter.Metrics != nil {
		s.adapter.Metrics.RecordSessionRejected(d.String())
	}
	return s.conn.WriteFPDU(resp)
}

// handleRelease implements the normal termination handshake (spec §4.3).
func (s *Session) handleRelease(f pesit.FPDU) error {
	if err := s.reply(pesit.RELCONF, nil); err != nil {
		return err
	}
	s.ctx.State = pesit.CN01_REPOS
	return nil
}

func getString(p pesit.ParamArea, id pesit.PI, ebcdic bool) string {
	if param, ok := p.Get(id); ok {
		return param.String(ebcdic)
	}
	return ""
}

func getUint8(p pesit.ParamArea, id pesit.PI) (uint8, bool) {
	param, ok := p.Get(id)
	if !ok {
		return 0, false
	}
	v, err := param.Uint8()
	if err != nil {
		return 0, false
	}
	return v, true
}

func getUint16(p pesit.ParamArea, id pesit.PI) (uint16, bool) {
	param, ok := p.Get(id)
	if !ok {
		return 0, false
	}
	v, err := param.Uint16()
	if err != nil {
		return 0, false
	}
	return v, true
}

func getUint32(p pesit.ParamArea, id pesit.PI) (uint32, bool) {
	param, ok := p.Get(id)
	if !ok {
		return 0, false
	}
	v, err := param.Uint32()
	if err != nil {
		return 0, false
	}
	return v, true
}
