package component

import (
	"context"

	"kernelboard/internal/cache"
	"kernelboard/internal/cache/freecache"
	"kernelboard/internal/cache/jetstream"
	"kernelboard/internal/queue"
	jq "kernelboard/internal/queue/jetstream"
	"kernelboard/internal/storage"
	"kernelboard/internal/storage/minio"
)

func GetCache(ctx context.Context, cacheType string) (cache.Cache, error) {
	switch cacheType {
	case "jetstream":
		return jetstream.NewJetStreamCacheClient()
	default:
		return freecache.NewFreeCache()
	}
}

func GetQueue(qType string) (queue.Queue, error) {
	switch qType {
	default:
		return jq.NewJetStreamQueueClient()
	}
}

func GetStorage(storageType string) (storage.Storage, error) {
	switch storageType {
	default:
		return minio.NewMinioClient()
	}
}
