package embedding

// =============================================================================
// TASK TYPES
// =============================================================================

// TaskType tells the provider how a vector will be used. Corpus chunks and
// queries are embedded asymmetrically.
type TaskType string

const (
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    TaskType = "RETRIEVAL_QUERY"
	TaskSemantic          TaskType = "SEMANTIC_SIMILARITY"
)

// ContentType represents the type of content being embedded.
type ContentType string

const (
	ContentTypePolicyChunk ContentType = "policy_chunk" // Corpus passages
	ContentTypeInquiry     ContentType = "inquiry"      // Customer email text
)

// SelectTaskType picks the task type for a content type.
func SelectTaskType(contentType ContentType) TaskType {
	switch contentType {
	case ContentTypePolicyChunk:
		return TaskRetrievalDocument
	case ContentTypeInquiry:
		return TaskRetrievalQuery
	default:
		return TaskSemantic
	}
}
