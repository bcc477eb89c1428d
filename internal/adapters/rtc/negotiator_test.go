package rtc

import (
	"errors"
	"testing"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type sentAnswer struct {
	sdps       []string
	candidates []webrtc.ICECandidateInit
}

func (s *sentAnswer) SendAnswer(sdp string) error {
	s.sdps = append(s.sdps, sdp)
	return nil
}

func (s *sentAnswer) SendCandidate(ci webrtc.ICECandidateInit) error {
	s.candidates = append(s.candidates, ci)
	return nil
}

type fakePeerConn struct {
	transceivers []webrtc.RTPCodecType
	remote       *webrtc.SessionDescription
	local        *webrtc.SessionDescription
	added        []webrtc.ICECandidateInit
	closed       int

	remoteErr error

	onICECandidate func(*webrtc.ICECandidate)
	onTrack        func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onConnState    func(webrtc.PeerConnectionState)
}

func (f *fakePeerConn) OnICECandidate(fn func(*webrtc.ICECandidate)) { f.onICECandidate = fn }

func (f *fakePeerConn) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) { f.onTrack = fn }

func (f *fakePeerConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.onConnState = fn
}

func (f *fakePeerConn) AddTransceiverFromKind(kind webrtc.RTPCodecType, _ ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error) {
	f.transceivers = append(f.transceivers, kind)
	return nil, nil
}

func (f *fakePeerConn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remote = &sd
	return nil
}

func (f *fakePeerConn) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakePeerConn) SetLocalDescription(sd webrtc.SessionDescription) error {
	f.local = &sd
	return nil
}

func (f *fakePeerConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.added = append(f.added, ci)
	return nil
}

func (f *fakePeerConn) WriteRTCP([]rtcp.Packet) error { return nil }

func (f *fakePeerConn) Close() error {
	f.closed++
	return nil
}

func cand(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func newTestNegotiator(t *testing.T) (*Negotiator, *fakePeerConn, *sentAnswer) {
	t.Helper()
	send := &sentAnswer{}
	n := NewNegotiator(send)
	pc := &fakePeerConn{}
	require.NoError(t, n.initialize(pc))
	return n, pc, send
}

func TestInitializeAddsRecvTransceivers(t *testing.T) {
	n, pc, _ := newTestNegotiator(t)
	defer n.Destroy()

	require.Equal(t, StateAwaitingOffer, n.State())
	require.Equal(t, []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio}, pc.transceivers)
}

func TestInitializeTwiceFails(t *testing.T) {
	n, _, _ := newTestNegotiator(t)
	defer n.Destroy()
	require.Error(t, n.initialize(&fakePeerConn{}))
}

func TestOfferBeforeInitializeRejected(t *testing.T) {
	n := NewNegotiator(&sentAnswer{})
	require.Error(t, n.HandleOffer("sdp"))
}

func TestCandidatesBufferedUntilOffer(t *testing.T) {
	n, pc, send := newTestNegotiator(t)
	defer n.Destroy()

	require.NoError(t, n.HandleCandidate(cand("c1")))
	require.NoError(t, n.HandleCandidate(cand("c2")))
	require.NoError(t, n.HandleCandidate(cand("c3")))
	require.Empty(t, pc.added, "nothing applied before the remote description")

	require.NoError(t, n.HandleOffer("offer-sdp"))

	// flushed in arrival order, after the remote description
	require.NotNil(t, pc.remote)
	require.Equal(t, "offer-sdp", pc.remote.SDP)
	require.Equal(t, []webrtc.ICECandidateInit{cand("c1"), cand("c2"), cand("c3")}, pc.added)
	require.Equal(t, []string{"answer-sdp"}, send.sdps)
	require.Equal(t, StateAwaitingLocalAnswer, n.State())
}

func TestCandidateAfterOfferAppliedDirectly(t *testing.T) {
	n, pc, _ := newTestNegotiator(t)
	defer n.Destroy()

	require.NoError(t, n.HandleOffer("offer-sdp"))
	require.NoError(t, n.HandleCandidate(cand("late")))
	require.Equal(t, []webrtc.ICECandidateInit{cand("late")}, pc.added)
}

func TestFailedRemoteDescriptionKeepsState(t *testing.T) {
	n, pc, send := newTestNegotiator(t)
	defer n.Destroy()
	pc.remoteErr = errors.New("bad sdp")

	require.Error(t, n.HandleOffer("offer-sdp"))
	require.Equal(t, StateAwaitingOffer, n.State())
	require.Empty(t, send.sdps)
}

func TestConnectedTransition(t *testing.T) {
	n, pc, _ := newTestNegotiator(t)
	defer n.Destroy()

	connected := false
	n.OnConnected(func() { connected = true })

	require.NoError(t, n.HandleOffer("offer-sdp"))
	pc.onConnState(webrtc.PeerConnectionStateConnected)

	require.Equal(t, StateConnected, n.State())
	require.True(t, connected)
}

func TestRenegotiationAllowedWhileConnected(t *testing.T) {
	n, pc, send := newTestNegotiator(t)
	defer n.Destroy()

	require.NoError(t, n.HandleOffer("offer-1"))
	pc.onConnState(webrtc.PeerConnectionStateConnected)
	require.NoError(t, n.HandleOffer("offer-2"))
	require.Equal(t, "offer-2", pc.remote.SDP)
	require.Len(t, send.sdps, 2)
	// no fresh transport event will arrive, so renegotiation must not
	// leave the established session downgraded
	require.Equal(t, StateConnected, n.State())
}

func TestTransportFailureIsAbsorbing(t *testing.T) {
	n, pc, _ := newTestNegotiator(t)
	defer n.Destroy()

	var got error
	n.OnError(func(err error) { got = err })

	pc.onConnState(webrtc.PeerConnectionStateFailed)
	require.Equal(t, StateErrored, n.State())
	require.ErrorIs(t, got, ErrTransportFailed)

	// further state changes and offers bounce off
	got = nil
	pc.onConnState(webrtc.PeerConnectionStateDisconnected)
	require.Nil(t, got)
	require.Error(t, n.HandleOffer("offer-sdp"))
	require.NoError(t, n.HandleCandidate(cand("ignored")))
	require.Empty(t, pc.added)
}

func TestDestroyIdempotent(t *testing.T) {
	n, pc, _ := newTestNegotiator(t)

	n.Destroy()
	n.Destroy()
	require.Equal(t, 1, pc.closed)
	require.Equal(t, StateClosed, n.State())

	// closed is terminal
	require.Error(t, n.HandleOffer("offer-sdp"))
	require.NoError(t, n.HandleCandidate(cand("ignored")))
	require.Empty(t, pc.added)
}

func TestMediaStreamVideoDetection(t *testing.T) {
	s := newMediaStream("stream-1")
	require.Equal(t, "stream-1", s.ID())
	require.False(t, s.HasVideo())
	require.Empty(t, s.Tracks())
}
