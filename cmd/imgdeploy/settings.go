package main

import (
	"flag"

	"github.com/davidmdm/conf"

	"github.com/lsst-dm/imgdeploy/internal/home"
	"github.com/lsst-dm/imgdeploy/internal/k8s"
)

type GlobalSettings struct {
	KubeConfigPath string
	Namespace      string
	Debug          bool
}

// GetEnvironmentSettings reads the defaults of the global flags from the environment.
func GetEnvironmentSettings() (settings GlobalSettings, err error) {
	conf.Var(conf.Environ, &settings.KubeConfigPath, "IMGDEPLOY_KUBECONFIG", conf.Default(home.Kubeconfig))
	conf.Var(conf.Environ, &settings.Namespace, "IMGDEPLOY_NAMESPACE", conf.Default(k8s.DefaultNamespace))
	conf.Var(conf.Environ, &settings.Debug, "IMGDEPLOY_DEBUG")
	err = conf.Environ.Parse()
	return
}

// RegisterGlobalFlags registers the flags shared by every command. The current values of settings are the defaults.
func RegisterGlobalFlags(flagset *flag.FlagSet, settings *GlobalSettings) {
	flagset.StringVar(&settings.KubeConfigPath, "kubeconfig", settings.KubeConfigPath, "path to kube config")
	flagset.StringVar(&settings.Namespace, "namespace", settings.Namespace, "namespace used for descriptors that do not declare one")
	flagset.BoolVar(&settings.Debug, "debug", settings.Debug, "print debug traces to stderr")
}
