// Package blobstore publishes finished clips to Google Cloud Storage and
// produces signed URLs the delivery channel can fetch without credentials.
package blobstore
