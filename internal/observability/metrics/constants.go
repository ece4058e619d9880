package metrics

// Operation names used as metric labels.
const (
	// OpAssetDownload is fetching an asset file from the source.
	OpAssetDownload = "asset_download"
	// OpAssetUpload is sending an asset file to the destination.
	OpAssetUpload = "asset_upload"
	// OpCheckpoint is persisting the migration state.
	OpCheckpoint = "checkpoint"
	// OpStage is one whole migration stage.
	OpStage = "stage"
	// OpPublish is publishing a created item.
	OpPublish = "publish"
)

// Status label values.
const (
	StatusMigrated = "migrated"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
	StatusSuccess  = "success"
	StatusError    = "error"
)

// Transfer directions.
const (
	DirectionDownload = "download"
	DirectionUpload   = "upload"
)

// Histogram bucket configuration constants.
const (
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1
	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
)
