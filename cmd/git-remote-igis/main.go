// Command git-remote-igis is the Git remote-helper driver for IPFS-backed
// remotes. It owns the stdio protocol framing and the Kubo HTTP client
// wiring; all translation logic lives in internal/core and its
// collaborators.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhappy/git-remote-igis/internal/cache"
	"github.com/dhappy/git-remote-igis/internal/core"
	"github.com/dhappy/git-remote-igis/internal/gitrepo"
	"github.com/dhappy/git-remote-igis/internal/igislog"
	"github.com/dhappy/git-remote-igis/internal/ipfs"
	"github.com/dhappy/git-remote-igis/internal/model"
	"github.com/dhappy/git-remote-igis/internal/refpack"
)

const defaultKuboAPI = "http://localhost:5001/api/v0"

func main() {
	log.SetPrefix("git-remote-igis: ")
	log.SetFlags(0)

	var ipfsAPI string
	flag.StringVar(&ipfsAPI, "ipfs-api", defaultKuboAPI, "Kubo HTTP API base URL")
	flag.Parse()
	args := flag.Args()

	if len(args) >= 1 {
		switch args[0] {
		case "hash-cache:clear":
			runHashCacheClear()
			return
		case "hash-cache:dump":
			runHashCacheDump()
			return
		}
	}

	if len(args) != 2 {
		log.Fatalf("usage: git-remote-igis [-ipfs-api url] <remote-name> <url>")
	}
	remoteName, url := args[0], args[1]

	name, rootCID := parseURL(url)
	igislog.Debugf("remote %s url %s -> name=%q rootCID=%q", remoteName, url, name, rootCID)

	c, closeCache, err := openCore(ipfsAPI)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeCache()

	runProtocol(c, name, rootCID)
}

func cacheDir() string {
	gitDir := os.Getenv("GIT_DIR")
	if gitDir == "" {
		gitDir = ".git"
	}
	return filepath.Join(gitDir, "remote-igis")
}

// openCore opens the local Git repository, the cache at <GIT_DIR>/remote-igis,
// and the Kubo HTTP client, wiring them into a *core.Core.
func openCore(ipfsAPI string) (*core.Core, func(), error) {
	repo, err := gitrepo.Open(".")
	if err != nil {
		return nil, nil, fmt.Errorf("open git repository: %w", err)
	}
	db, err := cache.Open(cacheDir())
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	client := ipfs.NewHTTPClient(ipfsAPI)
	return core.New(repo, client, db), func() {
		if err := db.Close(); err != nil {
			log.Printf("close cache: %v", err)
		}
	}, nil
}

// parseURL splits the two remote URL forms: "ipfs://<name>" (a brand-new
// remote; name is minted into the VFS) and a bare "<CID>" (a continuation
// push/fetch rooted at an existing remote).
func parseURL(url string) (name string, rootCID model.CID) {
	if strings.HasPrefix(url, "ipfs://") {
		return strings.TrimPrefix(url, "ipfs://"), ""
	}
	return "", model.CID(url)
}

func runHashCacheClear() {
	db, err := cache.Open(cacheDir())
	if err != nil {
		log.Fatalf("open cache: %v", err)
	}
	defer db.Close()
	if err := db.Drop(); err != nil {
		log.Fatalf("clear cache: %v", err)
	}
}

func runHashCacheDump() {
	db, err := cache.Open(cacheDir())
	if err != nil {
		log.Fatalf("open cache: %v", err)
	}
	defer db.Close()
	iter, err := db.Iterate()
	if err != nil {
		log.Fatalf("iterate cache: %v", err)
	}
	iter(func(e cache.Entry) bool {
		fmt.Printf("%s\t%s\n", e.Key, e.Value)
		return true
	})
}

// runProtocol drives the remote-helper text protocol over stdin/stdout.
// Every line git sends is read from stdin; every response line goes to
// stdout. Trace and error output goes to stderr so stdout stays reserved
// for the protocol.
func runProtocol(c *core.Core, name string, rootCID model.CID) {
	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for in.Scan() {
		line := in.Text()
		switch {
		case line == "capabilities":
			fmt.Fprintln(out, "push")
			fmt.Fprintln(out, "fetch")
			fmt.Fprintln(out)
			out.Flush()

		case line == "list" || line == "list for-push":
			handleList(ctx, c, rootCID, out)

		case strings.HasPrefix(line, "push "):
			lines := collectBatch(in, line)
			handlePush(ctx, c, rootCID, name, lines, out)

		case strings.HasPrefix(line, "fetch "):
			lines := collectBatch(in, line)
			handleFetch(ctx, c, rootCID, lines, out)

		case line == "":
			// Blank line outside a batch: nothing pending, ignore.

		default:
			igislog.Warnf("unrecognized command %q", line)
		}
	}
	if err := in.Err(); err != nil {
		log.Fatalf("read stdin: %v", err)
	}
}

// collectBatch gathers first plus every following line up to (excluding) the
// terminating blank line, since push/fetch commands arrive as a run of
// lines followed by one empty line.
func collectBatch(in *bufio.Scanner, first string) []string {
	lines := []string{first}
	for in.Scan() {
		line := in.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return lines
}

func handleList(ctx context.Context, c *core.Core, rootCID model.CID, out *bufio.Writer) {
	defer func() {
		fmt.Fprintln(out)
		out.Flush()
	}()
	if rootCID == "" {
		return // Brand-new remote: nothing to list yet.
	}
	b := refpack.NewBuilder(c.IPFS)
	if err := b.Preload(ctx, rootCID); err != nil {
		igislog.Warnf("list: %v", err)
		return
	}
	refLines, err := c.SerializeRefs(ctx, b.VFS)
	if err != nil {
		igislog.Warnf("list: %v", err)
		return
	}
	for _, l := range refLines {
		fmt.Fprintln(out, l)
	}
}

func handlePush(ctx context.Context, c *core.Core, rootCID model.CID, name string, lines []string, out *bufio.Writer) {
	var reqs []core.PushRequest
	for _, line := range lines {
		refPair := strings.TrimPrefix(line, "push ")
		refPair = strings.TrimPrefix(refPair, "+") // force-push: no rollback/negotiation, handled identically
		parts := strings.SplitN(refPair, ":", 2)
		if len(parts) != 2 {
			igislog.Warnf("malformed push line %q", line)
			continue
		}
		reqs = append(reqs, core.PushRequest{Src: parts[0], Dst: parts[1]})
	}

	newRootCID, outcomes, err := c.DoPush(ctx, rootCID, name, reqs)
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(out, "error %s %s\n", o.Dst, sanitize(o.Err.Error()))
			continue
		}
		fmt.Fprintf(out, "ok %s\n", o.Dst)
	}
	fmt.Fprintln(out)
	out.Flush()

	if err != nil {
		igislog.Warnf("push: %v", err)
		return
	}
	// The new root CID is the operator-visible result of the push; it goes
	// to stderr so stdout stays strict protocol framing for Git.
	log.Printf("new root: %s", newRootCID)
}

func handleFetch(ctx context.Context, c *core.Core, rootCID model.CID, lines []string, out *bufio.Writer) {
	defer func() {
		fmt.Fprintln(out)
		out.Flush()
	}()
	var reqs []core.FetchRequest
	for _, line := range lines {
		fields := strings.Fields(strings.TrimPrefix(line, "fetch "))
		if len(fields) != 2 {
			igislog.Warnf("malformed fetch line %q", line)
			continue
		}
		reqs = append(reqs, core.FetchRequest{Hash: model.OID(fields[0]), Ref: fields[1]})
	}
	if rootCID == "" {
		igislog.Warnf("fetch: no remote root CID to fetch from")
		return
	}
	if err := c.DoFetch(ctx, rootCID, reqs); err != nil {
		igislog.Warnf("fetch: %v", err)
	}
}

// sanitize keeps an error's protocol line on one line (the remote-helper
// wire format is newline-delimited).
func sanitize(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
