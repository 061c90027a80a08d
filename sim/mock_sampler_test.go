package sim

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestNewSimulatorAcceptsMockedPeerSampler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c := smallConfig()
	mock := NewMockPeerSampler(ctrl)
	// runSubEpochAction/sendUpdate/runEncounters all draw samples; accept
	// any number of calls and just hand back an empty selection, enough
	// to prove the Simulator drives the interface rather than a concrete
	// sampler type.
	mock.EXPECT().Sample(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s, err := NewSimulator(&c, mock)
	require.NoError(t, err)
	require.Len(t, s.Actors(), c.StartNoNodes)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
}
