package realtimeapi

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-asr/asr-gateway/pkg/asr"
	"github.com/realtime-asr/asr-gateway/pkg/realtimeapi/events"
	"github.com/realtime-asr/asr-gateway/pkg/trace"
)

// transcribeJobQueueSize bounds the feed queue. When the client outpaces the
// backend the session goroutine blocks on submit, which suspends reads and
// applies flow control instead of dropping audio.
const transcribeJobQueueSize = 256

type finalizeReply struct {
	result asr.FinalResult
	err    error
}

// transcribeJob is one unit of work for the session's transcription worker.
// Exactly one of the fields is set.
type transcribeJob struct {
	// samples to feed to the transcriber.
	samples []float32

	// barrier is closed once every job queued before it has completed.
	barrier chan struct{}

	// finalize receives the final result; the transcriber is reset
	// afterwards so the next feed starts a fresh utterance.
	finalize chan finalizeReply

	// swap replaces the worker's transcriber. Sent after a barrier, so the
	// old transcriber has no in-flight work.
	swap *asr.Transcriber
}

// transcribeWorker runs Feed and Finalize off the session goroutine, since
// both can block on backend compute. Jobs execute strictly in submission
// order; interim text events are enqueued on the session's outbound channel
// as feeds complete, so a barrier before commit guarantees no interim ever
// trails its item's committed event.
type transcribeWorker struct {
	session *Session
	tr      *asr.Transcriber
	jobs    chan transcribeJob
	done    chan struct{}
}

func newTranscribeWorker(session *Session, tr *asr.Transcriber) *transcribeWorker {
	w := &transcribeWorker{
		session: session,
		tr:      tr,
		jobs:    make(chan transcribeJob, transcribeJobQueueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *transcribeWorker) run() {
	defer close(w.done)

	for job := range w.jobs {
		switch {
		case job.samples != nil:
			w.feed(job.samples)
		case job.barrier != nil:
			close(job.barrier)
		case job.finalize != nil:
			result, err := w.finalize()
			w.tr.Reset()
			job.finalize <- finalizeReply{result: result, err: err}
		case job.swap != nil:
			w.tr = job.swap
		}
	}
}

// finalize runs the backend finalize under a span carrying the utterance
// attributes.
func (w *transcribeWorker) finalize() (asr.FinalResult, error) {
	ctx, span := trace.StartSpan(context.Background(), "asr.finalize",
		oteltrace.WithAttributes(trace.ItemAttrs(w.session.ID, w.session.currentItem())...))
	defer span.End()

	result, err := w.tr.Finalize(ctx)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(
		attribute.String(trace.AttrLanguage, result.Language),
		attribute.Int(trace.AttrTranscriptLen, len(result.Transcript)),
	)
	return result, err
}

func (w *transcribeWorker) feed(samples []float32) {
	if err := w.tr.Feed(context.Background(), samples); err != nil {
		log.Printf("[session %s] transcriber feed: %v", w.session.ID, err)
		return
	}

	interim := w.tr.Interim()
	if interim == nil {
		return
	}

	// The item may have been closed while this feed was queued; events for
	// a cleared item id are meaningless to the client, so skip them.
	itemID := w.session.currentItem()
	if itemID == "" {
		return
	}

	w.session.SendEvent(events.NewTranscriptionTextEvent(
		itemID, interim.Language, interim.Emotion, interim.Text, interim.Stash,
	))
}

// submitFeed queues samples for transcription, blocking when the queue is
// full. Returns false once the worker is shut down.
func (w *transcribeWorker) submitFeed(samples []float32) bool {
	select {
	case <-w.done:
		return false
	case w.jobs <- transcribeJob{samples: samples}:
		return true
	}
}

// flush blocks until every previously queued feed has completed.
func (w *transcribeWorker) flush() {
	barrier := make(chan struct{})
	select {
	case <-w.done:
		return
	case w.jobs <- transcribeJob{barrier: barrier}:
	}
	<-barrier
}

// finalizeAndReset flushes remaining audio, returns the final result, and
// resets the transcriber for the next utterance.
func (w *transcribeWorker) finalizeAndReset() (asr.FinalResult, error) {
	reply := make(chan finalizeReply, 1)
	select {
	case <-w.done:
		return asr.FinalResult{Language: "zh", Emotion: asr.EmotionNeutral}, nil
	case w.jobs <- transcribeJob{finalize: reply}:
	}
	r := <-reply
	return r.result, r.err
}

// swapTranscriber installs a new transcriber. Callers flush first so the old
// one is idle.
func (w *transcribeWorker) swapTranscriber(tr *asr.Transcriber) {
	select {
	case <-w.done:
	case w.jobs <- transcribeJob{swap: tr}:
	}
}

// close stops the worker after draining queued jobs.
func (w *transcribeWorker) close() {
	close(w.jobs)
	<-w.done
}
