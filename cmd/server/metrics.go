package main

import (
	"context"
	"log"
	"time"

	"github.com/vmeassist/opsd/internal/metrics"
	"github.com/vmeassist/opsd/internal/queue"
	"github.com/vmeassist/opsd/internal/store"
	"github.com/vmeassist/opsd/internal/task"
)

func startMetricsCollector(s *store.Store, q queue.Queue) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		updateTaskMetrics(s, q)
	}
}

func updateTaskMetrics(s *store.Store, q queue.Queue) {
	tasks := s.List(context.Background(), 500)

	tasksByStatus := make(map[task.Status]int)
	for _, t := range tasks {
		tasksByStatus[t.Status]++
	}

	metrics.UpdateTaskGauges(tasksByStatus)

	depth, err := q.Len()
	if err != nil {
		log.Printf("Failed to read queue depth for metrics: %v", err)
		return
	}

	metrics.UpdateQueueDepth(depth)
}
