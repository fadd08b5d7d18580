// Package pb holds the generated client/server stubs for the Trib wire
// service defined in trib.proto. Generated output (trib.pb.go,
// trib_grpc.pb.go) is not checked in; run `go generate` with protoc and
// the Go/gRPC plugins installed to produce it before building.
package pb

//go:generate protoc --go_out=. --go_opt=paths=source_relative --go-grpc_out=. --go-grpc_opt=paths=source_relative trib.proto
