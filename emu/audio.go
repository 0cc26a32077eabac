package emu

import (
	"context"
	"sync"
	"time"
	"unsafe"

	"github.com/go-faster/errors"
	"github.com/veandco/go-sdl2/sdl"

	"keytone/emu/log"
	"keytone/hw/tm4c"
)

const (
	AudioFormat   = sdl.AUDIO_S16LSB
	AudioChannels = 1
	AudioSamples  = 1024

	audioPeriod   = 10 * time.Millisecond
	maxAudioQueue = 100 * time.Millisecond // queued audio beyond which frames are dropped
)

// audioSink plays 16-bit little-endian mono samples.
type audioSink interface {
	Queue(buf []byte) error
	Queued() int // bytes queued, not yet played
	Close()
}

// audio follows the buzzer output and streams it to a sink.
type audio struct {
	sink  audioSink
	synth *synth
	rate  int

	mu  sync.Mutex
	out tm4c.PWMOutput

	closeOnce sync.Once
}

func newAudio(acfg AudioConfig, sink audioSink) *audio {
	return &audio{
		sink:  sink,
		synth: newSynth(acfg.SampleRate, acfg.Volume),
		rate:  acfg.SampleRate,
	}
}

// setOutput is the PWM change callback, it runs with the peripheral bus
// locked.
func (a *audio) setOutput(out tm4c.PWMOutput) {
	a.mu.Lock()
	a.out = out
	a.mu.Unlock()
}

func (a *audio) output() tm4c.PWMOutput {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out
}

// frame synthesizes d of sound and queues it, unless the sink is already
// full.
func (a *audio) frame(d time.Duration) error {
	clocks := min(int(d.Seconds()*synthClock), a.synth.maxFrameClocks())
	samples := a.synth.run(a.output(), clocks)
	if len(samples) == 0 {
		return nil
	}

	maxQueued := int(maxAudioQueue.Seconds()*float64(a.rate)) * 2
	if a.sink.Queued() > maxQueued {
		log.ModSound.DebugZ("audio queue full, frame dropped").Int("samples", len(samples)).End()
		return nil
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(&samples[0])), len(samples)*2)
	cpy := make([]byte, len(buf))
	copy(cpy, buf)
	return a.sink.Queue(cpy)
}

func (a *audio) run(ctx context.Context) error {
	tick := time.NewTicker(audioPeriod)
	defer tick.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick.C:
			if err := a.frame(now.Sub(last)); err != nil {
				log.ModSound.DebugZ("failed to queue audio buffer").Error("err", err).End()
			}
			last = now
		}
	}
}

func (a *audio) close() {
	a.closeOnce.Do(a.sink.Close)
}

type sdlAudio struct {
	dev sdl.AudioDeviceID
}

func openSDLAudio(acfg AudioConfig) (*sdlAudio, error) {
	var (
		dev sdl.AudioDeviceID
		err error
	)
	sdl.Do(func() {
		if err = sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
			return
		}
		want := sdl.AudioSpec{
			Freq:     int32(acfg.SampleRate),
			Format:   AudioFormat,
			Channels: AudioChannels,
			Samples:  AudioSamples,
		}
		if dev, err = sdl.OpenAudioDevice("", false, &want, nil, 0); err != nil {
			return
		}
		sdl.PauseAudioDevice(dev, false)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open audio device")
	}
	return &sdlAudio{dev: dev}, nil
}

func (sa *sdlAudio) Queue(buf []byte) error { return sdl.QueueAudio(sa.dev, buf) }
func (sa *sdlAudio) Queued() int            { return int(sdl.GetQueuedAudioSize(sa.dev)) }

func (sa *sdlAudio) Close() {
	sdl.Do(func() {
		sdl.CloseAudioDevice(sa.dev)
		sdl.QuitSubSystem(sdl.INIT_AUDIO)
	})
}
