/*
The sync package decides which of a model component's artifacts need to be
uploaded to the artifact store, and uploads them.

The sync state of an artifact is never persisted. It's recomputed from the
store every time it's needed, since other executors may upload the same
artifact between passes.

Classification is cheap-first:
1) If the store doesn't have the artifact, it's Missing.
2) If the store's upload date equals the local modification time, it's
   Current. The file isn't hashed.
3) If the store's content hash equals the local hash, it's Current.
4) If the upload date is older than the local modification time, it's
   Outdated.
5) Otherwise, the two copies have diverged in a way that can't be ordered
   (e.g. the local file was reverted, or the hosts' clocks are skewed), and
   the artifact is Unknown.

Uploads are sequential. Files above the large file threshold are uploaded
with a progress display; smaller files are uploaded silently.
*/
package sync
