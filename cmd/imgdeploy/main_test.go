package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"

	"github.com/lsst-dm/imgdeploy/internal"
	"github.com/lsst-dm/imgdeploy/internal/k8s"
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

func writeFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func render(t *testing.T, deployment *descriptor.Deployment) []byte {
	data, err := descriptor.Render(deployment)
	require.NoError(t, err)
	return data
}

func TestValidateCommand(t *testing.T) {
	valid := render(t, descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 1}))

	// Lines are counted from the start of the stream: the first document and its separator come first.
	replicasLine := strings.Count(string(valid[:bytes.Index(valid, []byte("replicas:"))]), "\n") + 1
	secondReplicasLine := strings.Count(string(valid), "\n") + 1 + replicasLine

	dangling := descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 1})
	dangling.Spec.Template.Spec.Containers[0].VolumeMounts[0].Name = "cfg"

	cases := []struct {
		Name     string
		Paths    []string
		Stdin    string
		Error    string
		Contains []string
	}{
		{
			Name:     "valid file",
			Paths:    []string{writeFile(t, "imgserv.yaml", valid)},
			Contains: []string{"1 descriptor(s) valid"},
		},
		{
			Name:     "valid stdin",
			Stdin:    string(valid),
			Contains: []string{"1 descriptor(s) valid"},
		},
		{
			Name:     "stream",
			Stdin:    string(valid) + "---\n" + string(valid),
			Contains: []string{"2 descriptor(s) valid"},
		},
		{
			Name:  "dangling mount",
			Paths: []string{writeFile(t, "dangling.yaml", render(t, dangling))},
			Error: "found 1 problem(s) in 1 descriptor(s)",
			Contains: []string{
				"ReferenceError",
				"spec.template.spec.containers[0].volumeMounts[0].name",
				"volume is not declared in the pod: cfg",
			},
		},
		{
			Name:  "errors of every document",
			Stdin: string(valid) + "---\n" + strings.Replace(string(valid), "replicas: 1", "replicas: -1", 1),
			Error: "found 1 problem(s) in 2 descriptor(s)",
			Contains: []string{
				"<stdin>#1",
				"RangeError",
				"spec.replicas",
				fmt.Sprintf(" %d ", secondReplicasLine),
			},
		},
		{
			Name:  "empty stream",
			Stdin: "# nothing here\n",
			Error: "<stdin>: no descriptor found",
		},
		{
			Name:  "missing file",
			Paths: []string{filepath.Join(t.TempDir(), "missing.yaml")},
			Error: "missing.yaml: no such file or directory",
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			var stdout bytes.Buffer

			ctx := internal.WithStdout(context.Background(), &stdout)
			ctx = internal.WithStdin(ctx, strings.NewReader(tc.Stdin))

			err := Validate(ctx, ValidateParams{Paths: tc.Paths})
			if tc.Error != "" {
				require.ErrorContains(t, err, tc.Error)
			} else {
				require.NoError(t, err)
			}

			for _, fragment := range tc.Contains {
				require.Contains(t, stdout.String(), fragment)
			}
		})
	}
}

func TestRenderCommand(t *testing.T) {
	canonical := render(t, descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 2}))

	var indented bytes.Buffer
	var value any
	require.NoError(t, yaml.Unmarshal(canonical, &value))
	encoder := yaml.NewEncoder(&indented)
	encoder.SetIndent(4)
	require.NoError(t, encoder.Encode(value))
	require.NoError(t, encoder.Close())

	t.Run("writes canonical form", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out.yaml")

		require.NoError(t, Render(context.Background(), RenderParams{
			Path: writeFile(t, "indented.yaml", indented.Bytes()),
			Out:  out,
		}))

		actual, err := os.ReadFile(out)
		require.NoError(t, err)
		require.Equal(t, string(canonical), string(actual))
	})

	t.Run("json", func(t *testing.T) {
		var stdout bytes.Buffer
		ctx := internal.WithStdout(context.Background(), &stdout)

		require.NoError(t, Render(ctx, RenderParams{
			Path:   writeFile(t, "imgserv.yaml", canonical),
			Format: "json",
		}))
		require.Contains(t, stdout.String(), `"containerPort": 5000`)
	})

	t.Run("check canonical", func(t *testing.T) {
		var stdout bytes.Buffer
		ctx := internal.WithStdout(context.Background(), &stdout)

		require.NoError(t, Render(ctx, RenderParams{
			Path:  writeFile(t, "imgserv.yaml", canonical),
			Check: true,
		}))
		require.Empty(t, stdout.String())
	})

	t.Run("check not canonical", func(t *testing.T) {
		var stdout bytes.Buffer
		ctx := internal.WithStdout(context.Background(), &stdout)

		path := writeFile(t, "indented.yaml", indented.Bytes())

		err := Render(ctx, RenderParams{Path: path, Check: true, Context: 1})
		require.EqualError(t, err, path+" is not in canonical form")
		require.Contains(t, stdout.String(), "+++ canonical")
		require.Contains(t, stdout.String(), "-    replicas: 2\n")
		require.Contains(t, stdout.String(), "+  replicas: 2\n")
	})

	t.Run("stream", func(t *testing.T) {
		stream := writeFile(t, "stream.yaml", bytes.Join([][]byte{canonical, canonical}, []byte("---\n")))

		err := Render(context.Background(), RenderParams{Path: stream})
		require.EqualError(t, err, stream+": expected a single descriptor but found 2")

		err = Render(context.Background(), RenderParams{Path: stream, Check: true})
		require.EqualError(t, err, stream+": expected a single descriptor but found 2")
	})

	t.Run("invalid", func(t *testing.T) {
		err := Render(context.Background(), RenderParams{
			Path: writeFile(t, "invalid.yaml", bytes.Replace(canonical, []byte("replicas: 2"), []byte("replicas: two"), 1)),
		})
		require.ErrorIs(t, err, descriptor.ErrSchema)
	})
}

func TestGenerateCommand(t *testing.T) {
	cases := []struct {
		Name     string
		Args     []string
		Expected *descriptor.Deployment
		Error    string
	}{
		{
			Name:     "defaults",
			Expected: descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 1}),
		},
		{
			Name: "options",
			Args: []string{"-replicas", "3", "-image", "lsstsqre/dax-imgserv:1.2.0", "-env", "LOG_LEVEL=debug"},
			Expected: descriptor.Imgserv(descriptor.ImgservOptions{
				Replicas: 3,
				Image:    "lsstsqre/dax-imgserv:1.2.0",
				Env:      []descriptor.EnvVar{{Name: "LOG_LEVEL", Value: ptr.To("debug")}},
			}),
		},
		{
			Name:  "image without tag",
			Args:  []string{"-image", "lsstsqre/dax-imgserv"},
			Error: "generated descriptor is invalid",
		},
		{
			Name:  "port out of range",
			Args:  []string{"-port", "70000"},
			Error: "RangeError",
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			params, err := GetGenerateParams(GlobalSettings{}, tc.Args)
			require.NoError(t, err)

			var stdout bytes.Buffer
			ctx := internal.WithStdout(context.Background(), &stdout)

			err = Generate(ctx, *params)
			if tc.Error != "" {
				require.ErrorContains(t, err, tc.Error)
				return
			}
			require.NoError(t, err)

			actual, err := descriptor.Parse(stdout.Bytes())
			require.NoError(t, err)
			require.Equal(t, tc.Expected, actual)
		})
	}
}

func TestEnvFlag(t *testing.T) {
	var env []descriptor.EnvVar
	value := envFlag{&env}

	require.NoError(t, value.Set("A=1"))
	require.NoError(t, value.Set("B="))
	require.EqualError(t, value.Set("=1"), `expected NAME=VALUE but got "=1"`)
	require.EqualError(t, value.Set("C"), `expected NAME=VALUE but got "C"`)

	require.Equal(t, []descriptor.EnvVar{{Name: "A", Value: ptr.To("1")}, {Name: "B", Value: ptr.To("")}}, env)
	require.Equal(t, "A=1,B=", value.String())
}

func TestDiffAgainstFile(t *testing.T) {
	local := writeFile(t, "local.yaml", render(t, descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 1})))
	scaled := writeFile(t, "scaled.yaml", render(t, descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 3})))

	t.Run("changed", func(t *testing.T) {
		var stdout bytes.Buffer
		ctx := internal.WithStdout(context.Background(), &stdout)

		require.NoError(t, Diff(ctx, DiffParams{Path: local, Against: scaled, Context: 1}))
		require.Contains(t, stdout.String(), "-  replicas: 1\n")
		require.Contains(t, stdout.String(), "+  replicas: 3\n")
	})

	t.Run("stream", func(t *testing.T) {
		stream := writeFile(t, "stream.yaml", []byte(strings.Repeat(string(render(t, descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 1})))+"---\n", 2)))

		err := Diff(context.Background(), DiffParams{Path: local, Against: stream})
		require.EqualError(t, err, stream+": expected a single descriptor but found 2")
	})

	t.Run("identical", func(t *testing.T) {
		var stdout bytes.Buffer
		ctx := internal.WithStdout(context.Background(), &stdout)

		err := Diff(ctx, DiffParams{Path: local, Against: local})
		require.True(t, internal.IsWarning(err), "expected warning but got %v", err)
		require.Empty(t, stdout.String())
	})
}

func TestReportStatus(t *testing.T) {
	live := func(replicas, ready int32) *appsv1.Deployment {
		return &appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: descriptor.ImgservName, Namespace: "default", Generation: 2},
			Spec:       appsv1.DeploymentSpec{Replicas: ptr.To(replicas)},
			Status: appsv1.DeploymentStatus{
				ObservedGeneration: 2,
				UpdatedReplicas:    ready,
				ReadyReplicas:      ready,
				AvailableReplicas:  ready,
				Conditions: []appsv1.DeploymentCondition{
					{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
				},
			},
		}
	}

	cases := []struct {
		Name     string
		Live     *appsv1.Deployment
		Error    string
		Contains string
	}{
		{Name: "ready", Live: live(1, 1), Contains: "ready"},
		{Name: "progressing", Live: live(1, 0), Contains: "progressing", Error: "not ready: default/dax-imgserv"},
		{Name: "drifted", Live: live(2, 2), Contains: "drifted", Error: "not ready: default/dax-imgserv"},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			var stdout bytes.Buffer
			ctx := internal.WithStdout(context.Background(), &stdout)

			client := k8s.NewClientFromClientset(fake.NewSimpleClientset(tc.Live))

			err := ReportStatus(
				ctx,
				client,
				[]*descriptor.Deployment{descriptor.Imgserv(descriptor.ImgservOptions{Replicas: 1})},
				StatusParams{RequireReady: true},
			)
			if tc.Error != "" {
				require.EqualError(t, err, tc.Error)
			} else {
				require.NoError(t, err)
			}
			require.Contains(t, stdout.String(), tc.Contains)
		})
	}
}
