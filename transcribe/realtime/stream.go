package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// trackRate is the Opus clock rate WebRTC mandates. Capture audio at
// other rates is resampled before encoding.
const trackRate = 48000

// opusFrameSamples is samples per channel in one 20ms uplink frame.
// libopus only accepts 2.5-60ms frames; capture buffers are sliced to
// this size before encoding, with the remainder carried over.
const opusFrameSamples = trackRate / 50

// frameDuration is the wall-clock span of one uplink frame.
const frameDuration = 20 * time.Millisecond

// maxOpusPacket bounds one encoded frame per RFC 6716.
const maxOpusPacket = 1275

// Stream is one WebRTC transcription session: audio up, transcript
// events down over the data channel.
type Stream struct {
	sessions *SessionManager
	language string

	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	track   *webrtc.TrackLocalStaticSample
	encoder *opuscodec.Encoder

	transcripts chan Transcript
	errs        chan error

	sendMu sync.Mutex
	frames framer

	mu     sync.Mutex
	closed bool
}

// framer slices arbitrary-length sample buffers into fixed-size frames,
// carrying the residue between calls. Capture buffers and Opus frame
// sizes have no common divisor, so the cut points drift across buffers.
type framer struct {
	size    int
	pending []float32
}

// push appends samples and returns every complete frame now available.
// Returned frames stay valid until the next push.
func (f *framer) push(samples []float32) [][]float32 {
	f.pending = append(f.pending, samples...)
	n := len(f.pending) / f.size
	if n == 0 {
		return nil
	}
	frames := make([][]float32, n)
	for i := range frames {
		frames[i] = f.pending[i*f.size : (i+1)*f.size]
	}
	rest := f.pending[n*f.size:]
	f.pending = append(make([]float32, 0, len(rest)), rest...)
	return frames
}

// StreamConfig configures a transcription stream.
type StreamConfig struct {
	APIKey   string
	Language string // hint forwarded to the session
}

// NewStream creates a stream. Connect must be called before SendAudio.
func NewStream(cfg StreamConfig) *Stream {
	return &Stream{
		sessions:    NewSessionManager(cfg.APIKey),
		language:    cfg.Language,
		frames:      framer{size: opusFrameSamples},
		transcripts: make(chan Transcript, 64),
		errs:        make(chan error, 1),
	}
}

// Connect performs the session handshake: ephemeral key, peer connection
// with an Opus uplink track, data channel, SDP exchange.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}

	secret, err := s.sessions.CreateSession(ctx, SessionConfig{Language: s.language})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	slog.Info("realtime session created", "expires", time.Unix(secret.ExpiresAt, 0))

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	s.pc = pc

	// The track must exist before the offer so its media section is
	// negotiated.
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: trackRate, Channels: 2},
		"audio", "cueme-capture")
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	s.track = track

	encoder, err := opuscodec.NewEncoder(trackRate, 2, opuscodec.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}
	s.encoder = encoder

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	s.dc = dc
	dc.OnMessage(s.handleMessage)
	dc.OnOpen(func() { slog.Info("realtime data channel open") })

	// Downlink audio is irrelevant to transcription; drain it so the
	// receiver does not stall.
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Debug("ice state", "state", state.String())
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			select {
			case s.errs <- fmt.Errorf("ice connection %s", state):
			default:
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	// Wait for gathering so the offer carries the ICE candidates.
	<-webrtc.GatheringCompletePromise(pc)

	answer, err := s.sessions.ExchangeSDP(ctx, pc.LocalDescription().SDP, secret.Value)
	if err != nil {
		return fmt.Errorf("exchange sdp: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	slog.Info("realtime transcription connected")
	return nil
}

// SendAudio encodes mono samples at sampleRate and writes them to the
// uplink track. Non-48kHz input is linearly resampled first, then sliced
// into 20ms frames; samples short of a frame boundary are held for the
// next call.
func (s *Stream) SendAudio(samples []float32, sampleRate int) error {
	s.mu.Lock()
	track := s.track
	encoder := s.encoder
	s.mu.Unlock()
	if track == nil || encoder == nil {
		return fmt.Errorf("stream not connected")
	}

	if sampleRate != trackRate {
		samples = resample(samples, sampleRate, trackRate)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	stereo := make([]float32, opusFrameSamples*2)
	packet := make([]byte, maxOpusPacket)
	for _, frame := range s.frames.push(samples) {
		// Duplicate mono into both channels; the track is negotiated
		// stereo.
		for i, v := range frame {
			stereo[i*2] = v
			stereo[i*2+1] = v
		}
		n, err := encoder.EncodeFloat32(stereo, packet)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		if err := track.WriteSample(media.Sample{
			Data:     packet[:n],
			Duration: frameDuration,
		}); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
	}
	return nil
}

// Transcripts returns partial and final transcription units.
func (s *Stream) Transcripts() <-chan Transcript {
	return s.transcripts
}

// Errors returns fatal stream errors.
func (s *Stream) Errors() <-chan error {
	return s.errs
}

// Close tears the session down. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.dc != nil {
		_ = s.dc.Close()
	}
	if s.pc != nil {
		return s.pc.Close()
	}
	return nil
}

func (s *Stream) handleMessage(msg webrtc.DataChannelMessage) {
	ev, err := parseServerEvent(msg.Data)
	if err != nil {
		slog.Warn("undecodable realtime event", "error", err)
		return
	}

	switch ev.Type {
	case eventTranscriptDelta:
		s.deliver(Transcript{ItemID: ev.ItemID, Text: ev.Delta})
	case eventTranscriptDone:
		s.deliver(Transcript{ItemID: ev.ItemID, Text: ev.Transcript, Final: true})
	case eventError:
		msg := "unknown realtime error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		select {
		case s.errs <- fmt.Errorf("realtime api: %s", msg):
		default:
		}
	default:
		slog.Debug("realtime event", "type", ev.Type)
	}
}

func (s *Stream) deliver(t Transcript) {
	select {
	case s.transcripts <- t:
	default:
		slog.Warn("transcript channel full, dropping", "item", t.ItemID, "final", t.Final)
	}
}

// resample converts between rates with linear interpolation. Quality is
// adequate for speech uplink; capture runs at 24kHz and Opus wants 48.
func resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	outLen := len(in) * to / from
	out := make([]float32, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
