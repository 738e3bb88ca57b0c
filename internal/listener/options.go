package listener

// ListenOptions is the per-listener delivery policy. It is fixed once the
// listener is constructed.
type ListenOptions struct {
	// IncludeQueryMetadataChanges raises events when only the query's
	// from-cache or pending-writes state changed.
	IncludeQueryMetadataChanges bool `yaml:"include_query_metadata_changes"`
	// IncludeDocumentMetadataChanges keeps Metadata-kind document changes.
	IncludeDocumentMetadataChanges bool `yaml:"include_document_metadata_changes"`
	// WaitForSyncWhenOnline holds back cache-only initial results while online.
	WaitForSyncWhenOnline bool `yaml:"wait_for_sync_when_online"`
}

// IncludeAllMetadataChanges returns options surfacing every metadata change.
func IncludeAllMetadataChanges() ListenOptions {
	return ListenOptions{
		IncludeQueryMetadataChanges:    true,
		IncludeDocumentMetadataChanges: true,
	}
}

func (o ListenOptions) excludesMetadataChanges() bool {
	return !o.IncludeQueryMetadataChanges || !o.IncludeDocumentMetadataChanges
}
