package common

// Version is the unsealer build version, overridable at link time:
//
//	go build -ldflags "-X github.com/Napuu/quorum-vault-auto-unsealer/common.Version=v1.2.3"
var Version = "dev"
