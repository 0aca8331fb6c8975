package service

import (
	"context"
	"errors"
	"review-talk-go/internal/model"
	"review-talk-go/internal/repository"
	"review-talk-go/pkg/log"
	"sync"
)

// ErrWriterClosed is returned by Enqueue after Close.
var ErrWriterClosed = errors.New("conversation writer is closed")

// ConversationWriter 以写后（write-behind）方式持久化对话消息。
// 单个 worker 按入队顺序写库，保证同一房间内用户消息先于 AI 消息落库。
type ConversationWriter struct {
	repo repository.ConversationRepository
	jobs chan writeJob
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// writeJob 要么是一批消息，要么是 Flush 放入的屏障。
type writeJob struct {
	batch   []*model.ConversationMessage
	barrier chan struct{}
}

// NewConversationWriter 创建写入器并启动 worker，queueSize 为缓冲的批次数。
func NewConversationWriter(repo repository.ConversationRepository, queueSize int) *ConversationWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &ConversationWriter{
		repo: repo,
		jobs: make(chan writeJob, queueSize),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue 把一批消息放入队列后立即返回；队列满时阻塞直到有空位。
func (w *ConversationWriter) Enqueue(messages ...*model.ConversationMessage) error {
	if len(messages) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.jobs <- writeJob{batch: messages}
	return nil
}

func (w *ConversationWriter) run() {
	defer close(w.done)
	for job := range w.jobs {
		if job.barrier != nil {
			close(job.barrier)
			continue
		}
		// 落库失败只记录日志，缓存不回滚
		if err := w.repo.CreateBatch(context.Background(), job.batch); err != nil {
			log.Errorf("[ConversationWriter] 保存对话失败, room: %d, 条数: %d, Error: %v", job.batch[0].ChatRoomID, len(job.batch), err)
		}
	}
}

// Flush 等待当前已入队的消息全部写完，或者 ctx 结束。
// 队列是 FIFO，屏障被 worker 处理时它之前的批次都已写完。
func (w *ConversationWriter) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.waitDone(ctx)
	}
	select {
	case w.jobs <- writeJob{barrier: barrier}:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *ConversationWriter) waitDone(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新消息，等待队列排空后返回。可以重复调用。
func (w *ConversationWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}
