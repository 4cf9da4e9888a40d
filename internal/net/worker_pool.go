package net

import (
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

type workerFunction = func(t *tomb.Tomb, task any) error

// workerPool runs a fixed number of tomb-supervised goroutines pulling
// from a shared task channel, so one slow connection never starves
// new accepts.
type workerPool struct {
	n     int
	tasks chan any
	log   zerolog.Logger
}

func newWorkerPool(size int, log zerolog.Logger) workerPool {
	return workerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
		log:   log,
	}
}

func (pool *workerPool) addTask(task any) {
	pool.tasks <- task
}

// setup starts pool.n workers, each looping over the task channel
// until the tomb dies; a task that fails or closes its connection does
// not end the worker.
func (pool *workerPool) setup(t *tomb.Tomb, work workerFunction) {
	pool.log.Info().Int("workers", pool.n).Msg("starting worker pool")
	for i := 0; i < pool.n; i++ {
		t.Go(func() error {
			return pool.runWorker(t, work)
		})
	}
}

func (pool *workerPool) runWorker(t *tomb.Tomb, work workerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				pool.log.Error().Err(err).Msg("worker task failed")
			}
		}
	}
}
