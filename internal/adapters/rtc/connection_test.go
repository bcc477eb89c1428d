package rtc

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type fakeOfferConn struct {
	remote *webrtc.SessionDescription
	local  *webrtc.SessionDescription
	added  []webrtc.ICECandidateInit
	closed int

	remoteErr error
}

func (f *fakeOfferConn) OnICECandidate(func(*webrtc.ICECandidate))                {}
func (f *fakeOfferConn) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (f *fakeOfferConn) AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return nil, errors.New("not supported")
}

func (f *fakeOfferConn) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeOfferConn) SetLocalDescription(sd webrtc.SessionDescription) error {
	f.local = &sd
	return nil
}

func (f *fakeOfferConn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remote = &sd
	return nil
}

func (f *fakeOfferConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.added = append(f.added, ci)
	return nil
}

func (f *fakeOfferConn) Close() error {
	f.closed++
	return nil
}

func newTestProducerConn() (*ProducerConnection, *fakeOfferConn) {
	pc := &fakeOfferConn{}
	return &ProducerConnection{pc: pc, viewer: "view"}, pc
}

func TestProducerBuffersCandidatesUntilAnswer(t *testing.T) {
	c, pc := newTestProducerConn()

	require.NoError(t, c.AddICECandidate(cand("c1")))
	require.NoError(t, c.AddICECandidate(cand("c2")))
	require.NoError(t, c.AddICECandidate(cand("c3")))
	require.Empty(t, pc.added, "nothing applied before the answer")

	require.NoError(t, c.ApplyAnswer("answer-sdp"))

	// flushed in arrival order, after the remote description
	require.NotNil(t, pc.remote)
	require.Equal(t, "answer-sdp", pc.remote.SDP)
	require.Equal(t, []webrtc.ICECandidateInit{cand("c1"), cand("c2"), cand("c3")}, pc.added)
}

func TestProducerCandidateAfterAnswerAppliedDirectly(t *testing.T) {
	c, pc := newTestProducerConn()

	require.NoError(t, c.ApplyAnswer("answer-sdp"))
	require.NoError(t, c.AddICECandidate(cand("late")))
	require.Equal(t, []webrtc.ICECandidateInit{cand("late")}, pc.added)
}

func TestProducerFailedAnswerKeepsBuffering(t *testing.T) {
	c, pc := newTestProducerConn()
	pc.remoteErr = errors.New("bad sdp")

	require.NoError(t, c.AddICECandidate(cand("c1")))
	require.Error(t, c.ApplyAnswer("answer-sdp"))
	require.Empty(t, pc.added, "buffer survives a rejected answer")

	pc.remoteErr = nil
	require.NoError(t, c.ApplyAnswer("answer-sdp"))
	require.Equal(t, []webrtc.ICECandidateInit{cand("c1")}, pc.added)
}
