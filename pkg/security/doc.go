/*
Package security seals cluster keyrings at rest.

The state store keeps the client.admin and monitor keyrings of every
deployed cluster so a later process can reach it. When a state key is
configured, a Sealer encrypts those blobs with AES-256-GCM before they are
written and decrypts them on load. The nonce is prepended to each sealed
blob.

The key is either 32 raw bytes or derived from a passphrase with SHA-256.
The CLI reads the passphrase from the CEPHDEPLOY_STATE_KEY environment
variable:

	sealer, err := security.SealerFromEnv()
	if err != nil {
		return err
	}
	var opts []storage.Option
	if sealer != nil {
		opts = append(opts, storage.WithSealer(sealer))
	}
	store, err := storage.NewBoltStore(dir, opts...)
*/
package security
