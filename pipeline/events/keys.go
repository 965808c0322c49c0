package events

// GenerateChunkKey creates the message key of a chunk. Every chunk of one blob
// shares the key, so a blob's chunks land on one partition in planning order.
// Format: {partitionKey}:{rowKey}
func GenerateChunkKey(id BlobIdentity) string {
	return id.PartitionKey() + ":" + id.RowKey()
}

// ChunkKeyFor derives the message key of an event from its blob name, falling
// back to the blob name when the path is not a flow-log path
func ChunkKeyFor(e ChunkEvent) string {
	id, err := ParseBlobPath(e.BlobName)
	if err != nil {
		return e.BlobName
	}
	return GenerateChunkKey(id)
}
