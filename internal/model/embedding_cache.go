package model

type EmbeddingCache struct {
	ID          int64
	ModelName   string
	ContentHash string
	Embedding   []float32
	Ctime       int64
}
