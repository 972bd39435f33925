package scheduler

import (
	"github.com/fetchward/crawlkit/internal/storage"
)

type CrawlingExecution struct {
	WriteResults []storage.WriteResult
}
