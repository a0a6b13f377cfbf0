package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// exactDriver targets one vendor/product pair.
func exactDriver(name string, vendor, product uint16) usb.Driver {
	return &targetDriver{
		stubDriver: stubDriver{name: name},
		targets:    []usb.Target{usb.TargetDeviceID(vendor, product)},
	}
}

// classDriver targets a device class.
func classDriver(name string, class usb.Class) usb.Driver {
	return &targetDriver{
		stubDriver: stubDriver{name: name},
		targets:    []usb.Target{usb.TargetClass(class)},
	}
}

// ===========================================================================
// CandidatesFor
// ===========================================================================

func TestRegistry_CandidatesFor_OrdersBySpecificity(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubDriver{name: "catch-all"}))
	require.NoError(t, r.Register(classDriver("by-class", usb.ClassMassStorage)))
	require.NoError(t, r.Register(exactDriver("by-id", 0x0781, 0x5583)))

	candidates := r.CandidatesFor(flashDrive())
	require.Len(t, candidates, 3)

	assert.Equal(t, "by-id", candidates[0].Name())
	assert.Equal(t, usb.SpecificityDevice, candidates[0].Specificity())
	assert.Equal(t, "by-class", candidates[1].Name())
	assert.Equal(t, usb.SpecificityClass, candidates[1].Specificity())
	assert.Equal(t, "catch-all", candidates[2].Name())
	assert.Equal(t, usb.SpecificityWildcard, candidates[2].Specificity())
}

func TestRegistry_CandidatesFor_RegistrationOrderWithinTier(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(classDriver("first", usb.ClassMassStorage)))
	require.NoError(t, r.Register(classDriver("second", usb.ClassMassStorage)))

	candidates := r.CandidatesFor(flashDrive())
	require.Len(t, candidates, 2)

	assert.Equal(t, "first", candidates[0].Name())
	assert.Equal(t, "second", candidates[1].Name())
}

func TestRegistry_CandidatesFor_ExcludesNonMatching(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(exactDriver("other-vendor", 0x046d, 0xc52b)))
	require.NoError(t, r.Register(classDriver("hid-only", usb.ClassHID)))
	require.NoError(t, r.Register(classDriver("storage", usb.ClassMassStorage)))

	candidates := r.CandidatesFor(flashDrive())
	require.Len(t, candidates, 1)
	assert.Equal(t, "storage", candidates[0].Name())
}

func TestRegistry_CandidatesFor_SnapshotStable(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubDriver{name: "early"}))

	candidates := r.CandidatesFor(flashDrive())
	require.Len(t, candidates, 1)

	// A driver registered after the snapshot does not join it.
	require.NoError(t, r.Register(&stubDriver{name: "late"}))
	assert.Len(t, candidates, 1)
	assert.Equal(t, "early", candidates[0].Name())
}

func TestRegistry_CandidatesFor_EmptyRegistry(t *testing.T) {
	r := New()
	assert.Empty(t, r.CandidatesFor(flashDrive()))
}

// ===========================================================================
// Candidate commit semantics
// ===========================================================================

func TestCandidate_Accessors(t *testing.T) {
	r := New()
	drv := exactDriver("by-id", 0x0781, 0x5583)
	require.NoError(t, r.Register(drv))

	candidates := r.CandidatesFor(flashDrive())
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, drv, c.Driver())
	assert.Equal(t, "by-id", c.Name())
	assert.Equal(t, usb.SpecificityDevice, c.Specificity())
}

func TestCandidate_Commit_CountsAttachment(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubDriver{name: "usb-storage"}))

	candidates := r.CandidatesFor(flashDrive())
	require.Len(t, candidates, 1)

	require.NoError(t, candidates[0].Commit())
	assert.Equal(t, 1, r.Attachments("usb-storage"))
}

func TestCandidate_Commit_FailsAfterUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubDriver{name: "usb-storage"}))

	// Snapshot taken, then the driver is pulled while its probe would
	// still be running.
	candidates := r.CandidatesFor(flashDrive())
	require.Len(t, candidates, 1)
	require.NoError(t, r.Unregister("usb-storage"))

	err := candidates[0].Commit()
	assert.ErrorIs(t, err, usb.ErrNotRegistered)
	assert.Equal(t, 0, r.Attachments("usb-storage"))
}

func TestCandidate_Commit_SurvivesUnrelatedUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubDriver{name: "usb-storage"}))
	require.NoError(t, r.Register(&stubDriver{name: "usb-hid"}))

	candidates := r.CandidatesFor(flashDrive())
	require.Len(t, candidates, 2)
	require.NoError(t, r.Unregister("usb-hid"))

	assert.NoError(t, candidates[0].Commit())
}

// ===========================================================================
// Concurrency
// ===========================================================================

func TestRegistry_CandidatesFor_ConcurrentChurn(t *testing.T) {
	r := New()
	dev := flashDrive()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = r.Register(&stubDriver{name: fmt.Sprintf("driver-%d", n)})
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.CandidatesFor(dev)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, r.Len())
}

func TestRegistry_ConcurrentCommitAndRelease(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubDriver{name: "usb-storage"}))
	dev := flashDrive()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidates := r.CandidatesFor(dev)
			if err := candidates[0].Commit(); err == nil {
				r.ReleaseAttachment("usb-storage")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Attachments("usb-storage"))
}
