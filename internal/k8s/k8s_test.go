package k8s

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"

	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

func toAPI(t *testing.T, deployment *descriptor.Deployment, namespace string) *appsv1.Deployment {
	t.Helper()

	data, err := json.Marshal(ToApplyConfiguration(deployment, namespace))
	require.NoError(t, err)

	var result appsv1.Deployment
	require.NoError(t, json.Unmarshal(data, &result))

	return &result
}

func TestApplyConfigurationRoundTrip(t *testing.T) {
	deployment := descriptor.Imgserv(descriptor.ImgservOptions{Namespace: "dax", Replicas: 2})

	api := toAPI(t, deployment, Namespace(deployment, ""))
	require.Equal(t, "apps/v1", api.APIVersion)
	require.Equal(t, "Deployment", api.Kind)
	require.Equal(t, "dax", api.Namespace)
	require.Equal(t, ptr.To[int32](2), api.Spec.Replicas)
	require.Equal(t, corev1.ProtocolTCP, api.Spec.Template.Spec.Containers[0].Ports[0].Protocol)

	converted, err := FromAPI(api)
	require.NoError(t, err)
	require.Equal(t, deployment, converted)
}

func TestFromAPIUnsupported(t *testing.T) {
	api := toAPI(t, descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 1}), "default")

	api.Spec.Selector.MatchExpressions = []metav1.LabelSelectorRequirement{
		{Key: "tier", Operator: metav1.LabelSelectorOpExists},
	}
	api.Spec.Template.Spec.Containers[0].Ports = append(
		api.Spec.Template.Spec.Containers[0].Ports,
		corev1.ContainerPort{ContainerPort: 5001, Protocol: corev1.ProtocolUDP},
	)
	api.Spec.Template.Spec.Volumes = append(api.Spec.Template.Spec.Volumes, corev1.Volume{
		Name:         "scratch",
		VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
	})

	_, err := FromAPI(api)
	require.ErrorIs(t, err, descriptor.ErrSchema)

	var list descriptor.ErrorList
	require.ErrorAs(t, err, &list)

	fields := make([]string, len(list))
	for i, e := range list {
		fields[i] = e.Field
	}

	require.Equal(
		t,
		[]string{
			"spec.selector.matchExpressions",
			"spec.template.spec.containers[0].ports[1].protocol",
			"spec.template.spec.volumes[2]",
		},
		fields,
	)
}

func TestFromAPIDefaultsReplicas(t *testing.T) {
	api := toAPI(t, descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 4}), "default")
	api.Spec.Replicas = nil

	converted, err := FromAPI(api)
	require.NoError(t, err)
	require.Equal(t, int32(1), converted.Spec.Replicas)
}

func TestGetDeployment(t *testing.T) {
	expected := descriptor.Imgserv(descriptor.ImgservOptions{Namespace: "dax", Replicas: 1})
	live := toAPI(t, expected, "dax")
	live.Spec.Template.Spec.Containers[0].ImagePullPolicy = corev1.PullIfNotPresent
	live.Spec.Template.Spec.Containers[0].TerminationMessagePath = corev1.TerminationMessagePathDefault

	client := NewClientFromClientset(fake.NewSimpleClientset(live))

	actual, err := client.GetDeployment(context.Background(), "dax", descriptor.ImgservName)
	require.NoError(t, err)
	require.Equal(t, expected, actual)

	_, err = client.GetDeployment(context.Background(), "default", descriptor.ImgservName)
	require.True(t, kerrors.IsNotFound(err), "expected not found but got %v", err)
}

func TestStatus(t *testing.T) {
	cases := []struct {
		Name   string
		Status appsv1.DeploymentStatus
		Ready  bool
	}{
		{
			Name: "rolled out",
			Status: appsv1.DeploymentStatus{
				ObservedGeneration: 3,
				UpdatedReplicas:    2,
				ReadyReplicas:      2,
				AvailableReplicas:  2,
				Conditions: []appsv1.DeploymentCondition{
					{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
				},
			},
			Ready: true,
		},
		{
			Name: "rolling",
			Status: appsv1.DeploymentStatus{
				ObservedGeneration: 3,
				UpdatedReplicas:    1,
				ReadyReplicas:      2,
				AvailableReplicas:  2,
				Conditions: []appsv1.DeploymentCondition{
					{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
				},
			},
			Ready: false,
		},
		{
			Name: "stale generation",
			Status: appsv1.DeploymentStatus{
				ObservedGeneration: 2,
				UpdatedReplicas:    2,
				ReadyReplicas:      2,
				AvailableReplicas:  2,
				Conditions: []appsv1.DeploymentCondition{
					{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
				},
			},
			Ready: false,
		},
		{
			Name: "unavailable",
			Status: appsv1.DeploymentStatus{
				ObservedGeneration: 3,
				UpdatedReplicas:    2,
				ReadyReplicas:      2,
				AvailableReplicas:  2,
				Conditions: []appsv1.DeploymentCondition{
					{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionFalse},
				},
			},
			Ready: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			live := toAPI(t, descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 2}), "default")
			live.Generation = 3
			live.Status = tc.Status

			client := NewClientFromClientset(fake.NewSimpleClientset(live))

			status, err := client.Status(context.Background(), "default", descriptor.ImgservName)
			require.NoError(t, err)
			require.Equal(t, int32(2), status.Replicas)
			require.Equal(t, tc.Ready, status.Ready())
		})
	}
}

func TestNamespace(t *testing.T) {
	deployment := descriptor.Imgserv(descriptor.ImgservOptions{})
	require.Equal(t, "default", Namespace(deployment, ""))
	require.Equal(t, "dax", Namespace(deployment, "dax"))

	deployment.Metadata.Namespace = "declared"
	require.Equal(t, "declared", Namespace(deployment, "dax"))
}
