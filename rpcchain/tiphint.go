package rpcchain

import (
	"context"

	"github.com/go-zeromq/zmq4"

	"github.com/opnet-labs/opnetd/errkind"
)

// TipHint is a notification that a new block has connected to the
// upstream's best chain. It carries only the hash; the body still
// comes from the Fetcher, treating a ZMQ push as a poke rather than a
// data channel.
type TipHint struct {
	Hash string
}

// TipSubscriber listens on the upstream's "hashblock" ZMQ publisher
// socket and forwards each notification on a channel. It exists
// because polling get_chain_info on a timer would add seconds of
// latency to every new block; the hint lets the indexer call GetBlock
// immediately instead.
type TipSubscriber struct {
	endpoint string
	sock     zmq4.Socket
}

// NewTipSubscriber dials endpoint (e.g. "tcp://127.0.0.1:28332") and
// subscribes to the "hashblock" topic.
func NewTipSubscriber(ctx context.Context, endpoint string) (*TipSubscriber, error) {
	sock := zmq4.NewSub(ctx)
	if err := sock.Dial(endpoint); err != nil {
		return nil, errkind.New(errkind.KindUpstream, "ZMQDialFailed", true, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, "hashblock"); err != nil {
		_ = sock.Close()
		return nil, errkind.New(errkind.KindUpstream, "ZMQSubscribeFailed", true, err)
	}
	return &TipSubscriber{endpoint: endpoint, sock: sock}, nil
}

// Run blocks receiving messages until ctx is cancelled or the socket
// errors, forwarding each hashblock hint on hints. It is meant to run
// in its own goroutine under an errgroup managed by bus.
func (s *TipSubscriber) Run(ctx context.Context, hints chan<- TipHint) error {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errkind.New(errkind.KindUpstream, "ZMQRecvFailed", false, err)
			}
		}
		if len(msg.Frames) < 2 {
			continue
		}
		hash := reverseHex(msg.Frames[1])
		select {
		case hints <- TipHint{Hash: hash}:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the underlying socket.
func (s *TipSubscriber) Close() error {
	return s.sock.Close()
}

const hexDigits = "0123456789abcdef"

// reverseHex renders a little-endian block hash frame as the
// big-endian hex string every other interface in this package uses,
// mirroring chainhash.Hash's own reversed String() convention.
func reverseHex(frame []byte) string {
	out := make([]byte, len(frame)*2)
	for i := 0; i < len(frame); i++ {
		b := frame[len(frame)-1-i]
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
