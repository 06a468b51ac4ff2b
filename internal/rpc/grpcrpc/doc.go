// Package grpcrpc carries rpc.SchedulerService over gRPC.
//
// Messages are JSON-encoded (content-subtype "json"), so the service
// descriptor is written by hand instead of generated from protobuf. One
// Server hosts any number of logical addresses; clients select one with the
// x-service-address metadata key.
package grpcrpc
