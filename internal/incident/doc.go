// Package incident provides the business boundary for roadwatch's incident
// records. It defines the Service (operator submission, status lifecycle,
// statistics, advisory dispatch, event emission), the Store interface
// (persistence), and the domain models shared by the ingestion pipeline.
package incident
