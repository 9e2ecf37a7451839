/*
Package framework wires the caches, pools, maintenance driver and metrics
collector together from a single configuration.

Consumers receive the framework (or the individual caches and pools built
from it) through their constructors; there is no package-level registry.

	fw, err := framework.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	defer fw.Stop(context.Background())

	assets, err := framework.NewCache[uuid.UUID, *Asset](fw, "assets")
	packets, err := framework.NewObjectPool(fw, "packets", func() *Packet { return new(Packet) })

	buf := fw.Buffers().LeaseBytes(1200)
	defer fw.Buffers().ReturnBytes(buf)
*/
package framework
