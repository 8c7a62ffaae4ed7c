package match

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

func cloudlet(uuid string) *model.Cloudlet {
	return &model.Cloudlet{UUID: uuid, Resources: model.Resources{}}
}

func collect(seq func(func(*model.Cloudlet) bool)) []string {
	var out []string
	seq(func(c *model.Cloudlet) bool {
		out = append(out, c.UUID)
		return true
	})
	return out
}

func TestNetworkOverridesDistance(t *testing.T) {
	_, local, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)

	a := cloudlet("A")
	a.NetworkPolicy.LocalNetworks = []*net.IPNet{local}
	a.Locations = []model.LatLon{{Latitude: 0, Longitude: 0}} // far away

	b := cloudlet("B")
	b.Locations = []model.LatLon{{Latitude: 40.44, Longitude: -79.94}} // close to client

	client := model.ClientInfo{
		IPAddress: net.ParseIP("10.1.2.3"),
		Location:  &model.LatLon{Latitude: 40.44, Longitude: -79.94},
	}

	p, err := Build([]string{StageNetwork, StageLocation}, DefaultConfig())
	require.NoError(t, err)

	got := collect(p.Candidates(client, model.Recipe{}, []*model.Cloudlet{a, b}))
	assert.Equal(t, []string{"A", "B"}, got)
}

func TestCarbonOrdering(t *testing.T) {
	mk := func(uuid string, ci float64) *model.Cloudlet {
		c := cloudlet(uuid)
		c.Resources[model.ResourceCarbonIntensity] = ci
		return c
	}
	candidates := []*model.Cloudlet{mk("high", 450), mk("low", 120), mk("mid", 300)}

	p, err := Build([]string{StageCarbonIntensity}, DefaultConfig())
	require.NoError(t, err)

	got := collect(p.Candidates(model.ClientInfo{}, model.Recipe{}, candidates))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"low", "mid", "high"}, got[:3])
}

func TestLaterStagesNotInvokedOnEarlyBreak(t *testing.T) {
	_, local, err := net.ParseCIDR("1.2.3.0/24")
	require.NoError(t, err)
	a := cloudlet("A")
	a.NetworkPolicy.LocalNetworks = []*net.IPNet{local}
	calledRandom := false

	p := New(&networkStage{emptyAcceptedMeansAcceptAll: true}, stageFunc{name: StageRandom, fn: func() { calledRandom = true }})

	client := model.ClientInfo{IPAddress: net.ParseIP("1.2.3.4")}
	count := 0
	for range p.Candidates(client, model.Recipe{}, []*model.Cloudlet{a}) {
		count++
		break
	}
	assert.Equal(t, 1, count)
	assert.False(t, calledRandom, "stage after an early break must not run")
}

// stageFunc is a test-only Stage that records whether it was invoked,
// used to assert the pipeline's laziness across stage boundaries.
type stageFunc struct {
	name string
	fn   func()
}

func (s stageFunc) Name() string { return s.name }
func (s stageFunc) Select(_ model.ClientInfo, _ model.Recipe, candidates *[]*model.Cloudlet) []*model.Cloudlet {
	s.fn()
	out := *candidates
	*candidates = nil
	return out
}
