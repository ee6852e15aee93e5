package k8s

import (
	"cmp"
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/lsst-dm/imgdeploy/internal"
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

const (
	FieldManager     = "imgdeploy"
	DefaultNamespace = "default"
)

// Client is a read-only view of the cluster. Writes are only ever issued as server side dry runs.
type Client struct {
	clientset kubernetes.Interface
}

func NewClientFromKubeConfig(path string) (*Client, error) {
	restcfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("failed to build k8 config: %w", err)
	}
	return NewClient(restcfg)
}

func NewClient(cfg *rest.Config) (*Client, error) {
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8 clientset: %w", err)
	}
	return NewClientFromClientset(clientset), nil
}

func NewClientFromClientset(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

// Namespace returns the namespace the deployment targets, preferring the one it declares.
func Namespace(deployment *descriptor.Deployment, fallback string) string {
	return cmp.Or(deployment.Metadata.Namespace, fallback, DefaultNamespace)
}

func (client Client) GetDeployment(ctx context.Context, namespace, name string) (*descriptor.Deployment, error) {
	defer internal.DebugTimer(ctx, fmt.Sprintf("get deployment %s/%s", namespace, name))()

	live, err := client.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	deployment, err := FromAPI(live)
	if err != nil {
		return nil, fmt.Errorf("failed to convert live deployment: %w", err)
	}

	return deployment, nil
}

type DryRunOpts struct {
	Namespace      string
	ForceConflicts bool
}

// DryRun submits the deployment as a server side apply with every stage marked as dry run,
// and returns the deployment the server would have persisted.
func (client Client) DryRun(ctx context.Context, deployment *descriptor.Deployment, opts DryRunOpts) (*descriptor.Deployment, error) {
	defer internal.DebugTimer(ctx, "dry run "+deployment.Metadata.Name)()

	namespace := Namespace(deployment, opts.Namespace)

	result, err := client.clientset.AppsV1().Deployments(namespace).Apply(
		ctx,
		ToApplyConfiguration(deployment, namespace),
		metav1.ApplyOptions{
			FieldManager: FieldManager,
			Force:        opts.ForceConflicts,
			DryRun:       []string{metav1.DryRunAll},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("dry run: %s/%s: %w", namespace, deployment.Metadata.Name, err)
	}

	return FromAPI(result)
}

func (client Client) Status(ctx context.Context, namespace, name string) (*RolloutStatus, error) {
	defer internal.DebugTimer(ctx, fmt.Sprintf("status %s/%s", namespace, name))()

	live, err := client.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	return StatusOf(live), nil
}
