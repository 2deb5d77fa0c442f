// Package control maps OSC messages from a control surface onto the looper's
// buttons.
package control

import (
	"context"
	"net"
	"sync"

	commonerrors "github.com/gruntwork-io/go-commons/errors"
	"github.com/hypebeast/go-osc/osc"
	"github.com/robmorgan/loopstation/logger"
	"github.com/sirupsen/logrus"
)

const (
	RecordAddress   = "/looper/record"
	PlaybackAddress = "/looper/playback"
)

// Controller is the set of buttons a control surface can press.
type Controller interface {
	OnRecordPress()
	OnPlaybackPress()
}

// NewDispatcher routes record and playback messages to ctrl.
func NewDispatcher(ctrl Controller) (*osc.StandardDispatcher, error) {
	d := osc.NewStandardDispatcher()
	if err := d.AddMsgHandler(RecordAddress, pressHandler(RecordAddress, ctrl.OnRecordPress)); err != nil {
		return nil, commonerrors.WithStackTrace(err)
	}
	if err := d.AddMsgHandler(PlaybackAddress, pressHandler(PlaybackAddress, ctrl.OnPlaybackPress)); err != nil {
		return nil, commonerrors.WithStackTrace(err)
	}
	return d, nil
}

func pressHandler(address string, press func()) osc.HandlerFunc {
	log := logger.GetProjectLogger()
	return func(msg *osc.Message) {
		if !isPress(msg) {
			return
		}
		log.WithFields(logrus.Fields{"address": address, "args": len(msg.Arguments)}).Debug("button pressed")
		press()
	}
}

// isPress reports whether msg is a button going down. Messages without
// arguments always count; surfaces that also send the release carry a zero.
func isPress(msg *osc.Message) bool {
	if len(msg.Arguments) == 0 {
		return true
	}
	switch v := msg.Arguments[0].(type) {
	case int32:
		return v != 0
	case int64:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	case bool:
		return v
	default:
		return true
	}
}

// Serve listens for OSC over UDP on addr until ctx is cancelled.
func Serve(ctx context.Context, wg *sync.WaitGroup, addr string, dispatcher osc.Dispatcher) error {
	log := logger.GetProjectLogger()

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return commonerrors.WithStackTrace(err)
	}
	server := &osc.Server{Addr: addr, Dispatcher: dispatcher}

	log.WithField("addr", conn.LocalAddr().String()).Info("listening for OSC")

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer wg.Done()
		if err := server.Serve(conn); err != nil && ctx.Err() == nil {
			log.Errorf("OSC server stopped: %v", err)
		}
	}()
	return nil
}
