package app

import (
	"github.com/itsukison/CueMeFinal-sub003/permissions"
	"github.com/itsukison/CueMeFinal-sub003/pipeline"
	"github.com/itsukison/CueMeFinal-sub003/question"
)

// AudioStreamState is the composed snapshot handed to the frontend: the
// coordinator's stream state plus the question buffer and batch state.
type AudioStreamState struct {
	pipeline.StreamState
	Questions      []question.DetectedQuestion `json:"questions"`
	Batch          question.BatchState         `json:"batch"`
	DroppedBuffers uint64                      `json:"droppedBuffers"`
	Realtime       bool                        `json:"realtime"`
}

// GetAudioState returns a snapshot of the full audio pipeline state.
func (s *Service) GetAudioState() AudioStreamState {
	state := AudioStreamState{
		Questions: s.detector.Buffer(),
		Batch:     s.batcher.State(),
	}
	if s.coord != nil {
		state.StreamState = s.coord.State()
		state.DroppedBuffers = s.coord.DroppedBuffers()
	}
	if s.realtime != nil {
		state.Realtime = s.realtime.Running()
	}
	return state
}

// GetAudioSources enumerates the capture sources the frontend can show:
// the microphone and the single system-audio channel, with availability
// derived from the tracked permission state.
func (s *Service) GetAudioSources() []pipeline.AudioSource {
	var snap permissions.Snapshot
	if s.perms != nil {
		snap = s.perms.Snapshot()
	}
	return []pipeline.AudioSource{
		{
			ID:        string(pipeline.SourceMicrophone),
			Name:      "Microphone",
			Type:      pipeline.SourceMicrophone,
			Available: snap.Statuses[permissions.KindMicrophone] == permissions.StatusGranted,
		},
		{
			ID:        string(pipeline.SourceSystem),
			Name:      "System Audio",
			Type:      pipeline.SourceSystem,
			Available: snap.Statuses[permissions.KindSystemAudio] == permissions.StatusGranted,
		},
	}
}
