package home

import (
	"os"
	"path/filepath"
)

var (
	Dir        string
	Kubeconfig string
)

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		// Without a home directory the kubeconfig must be given explicitly.
		return
	}
	Dir = home
	Kubeconfig = filepath.Join(home, ".kube", "config")
}
